package search

import (
	"context"
	"sync"
	"time"

	"github.com/alex-user-go/skisearch/internal/obs"
	"github.com/alex-user-go/skisearch/internal/search/types"
)

// timeoutGuard races a run against a wall-clock cutoff and lets exactly one
// finalization through, whichever side gets there first.
type timeoutGuard struct {
	timer *time.Timer
	once  sync.Once
}

func newTimeoutGuard(d time.Duration) *timeoutGuard {
	return &timeoutGuard{timer: time.NewTimer(d)}
}

// C fires when the cutoff is reached.
func (g *timeoutGuard) C() <-chan time.Time {
	return g.timer.C
}

// finalize runs fn on the first call only and returns its error.
func (g *timeoutGuard) finalize(fn func() error) error {
	var err error
	g.once.Do(func() {
		g.timer.Stop()
		err = fn()
	})
	return err
}

func (g *timeoutGuard) stop() {
	g.timer.Stop()
}

// Stream runs a search and reports every admitted offer to emit as it arrives.
// It then emits exactly one terminal event: EventSearchComplete with the offers
// collected so far, sorted by price, once every sub-run is done or the stream
// timeout elapses; or EventError if the aggregation itself fails. Offers that
// arrive after the terminal event are dropped.
//
// emit is called synchronously, so a slow emit can overrun the cutoff by at
// most the one offer in flight; the cutoff is checked again before each offer.
//
// An error returned by emit abandons the run and is returned as is.
func (a *Aggregator) Stream(ctx context.Context, q types.LogicalQuery, emit func(types.Event) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	guard := newTimeoutGuard(a.cfg.StreamTimeout)
	defer guard.stop()

	stream := a.Run(runCtx, q)
	var collected []types.Offer

	complete := func(reason string) error {
		return guard.finalize(func() error {
			cancel()
			sorted := SortByPrice(collected)
			a.metrics.IncFinalized(reason)
			a.logger.Info("search finalized",
				"reason", reason,
				"ski_site", q.SkiSite,
				"group_size", q.GroupSize,
				"total", len(sorted),
			)
			return emit(types.Event{
				Type:   types.EventSearchComplete,
				Offers: sorted,
				Total:  len(sorted),
			})
		})
	}

	for {
		select {
		case offer, ok := <-stream.Offers():
			if !ok {
				if err := stream.Err(); err != nil {
					return guard.finalize(func() error {
						a.metrics.IncFinalized(obs.ReasonError)
						a.logger.Error("error in hotel search",
							"ski_site", q.SkiSite,
							"group_size", q.GroupSize,
							"error", err,
						)
						return emit(types.Event{Type: types.EventError, Message: err.Error()})
					})
				}
				return complete(obs.ReasonComplete)
			}

			select {
			case <-guard.C():
				return complete(obs.ReasonTimeout)
			default:
			}

			collected = append(collected, offer)
			if err := emit(types.Event{Type: types.EventOfferFound, Offer: &offer}); err != nil {
				return err
			}
		case <-guard.C():
			return complete(obs.ReasonTimeout)
		}
	}
}
