package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alex-user-go/skisearch/internal/obs"
	"github.com/alex-user-go/skisearch/internal/providers"
	"github.com/alex-user-go/skisearch/internal/search/types"
)

// Default engine settings.
const (
	DefaultMaxGroupSize  = 10
	DefaultStreamTimeout = 60 * time.Second
)

// Config holds engine settings.
type Config struct {
	// MaxGroupSize is the largest group size a query is widened to.
	MaxGroupSize int
	// StreamTimeout is the wall-clock cutoff for streaming searches.
	StreamTimeout time.Duration
	// SubRunTimeout caps a single provider call. Zero disables the cap.
	SubRunTimeout time.Duration
	// MaxConcurrency bounds concurrent sub-runs per search. Zero means unbounded.
	MaxConcurrency int
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		MaxGroupSize:  DefaultMaxGroupSize,
		StreamTimeout: DefaultStreamTimeout,
	}
}

// errAborted marks a sub-run cut short by its run ending.
var errAborted = errors.New("sub-run aborted")

// Aggregator fans a search out across providers and group sizes and merges the results.
type Aggregator struct {
	providers []providers.Provider
	cfg       Config
	expander  Expander
	metrics   *obs.Metrics
	logger    *slog.Logger
}

// NewAggregator creates a new Aggregator. Zero config fields take their defaults.
// A nil metrics disables instrumentation.
func NewAggregator(providers []providers.Provider, cfg Config, metrics *obs.Metrics, logger *slog.Logger) *Aggregator {
	if cfg.MaxGroupSize == 0 {
		cfg.MaxGroupSize = DefaultMaxGroupSize
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		providers: providers,
		cfg:       cfg,
		expander:  Expander{MaxGroupSize: cfg.MaxGroupSize},
		metrics:   metrics,
		logger:    logger,
	}
}

// Stream is the merged, de-duplicated offer stream of one run.
type Stream struct {
	offers chan types.Offer
	err    error
	stats  types.Stats
}

// Offers returns the channel of admitted offers. It is closed when the run ends.
func (s *Stream) Offers() <-chan types.Offer {
	return s.offers
}

// Err returns the aggregation failure, if any. Only valid once Offers is closed.
func (s *Stream) Err() error {
	return s.err
}

// Stats returns run statistics. Only valid once Offers is closed.
func (s *Stream) Stats() types.Stats {
	return s.stats
}

// Run starts one sub-run per provider and concrete query and merges them into
// a single stream. Sub-run failures are logged and treated as empty results.
// The stream fails only if ctx ends before every sub-run has finished.
func (a *Aggregator) Run(ctx context.Context, q types.LogicalQuery) *Stream {
	s := &Stream{offers: make(chan types.Offer, 16)}

	queries := a.expander.Expand(q)
	if len(a.providers) == 0 || len(queries) == 0 {
		close(s.offers)
		return s
	}

	var sem *semaphore.Weighted
	if a.cfg.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(a.cfg.MaxConcurrency))
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
		raw    = make(chan types.Offer)
	)

	for _, provider := range a.providers {
		for _, cq := range queries {
			wg.Go(func() {
				if err := a.subRun(ctx, sem, provider, cq, raw); err != nil && !errors.Is(err, errAborted) {
					failed.Add(1)
				}
			})
		}
	}

	go func() {
		wg.Wait()
		close(raw)
	}()

	s.stats.SubRunsTotal = len(a.providers) * len(queries)

	// Single merge point: every offer passes through here in arrival order.
	go func() {
		defer close(s.offers)

		dedup := NewDeduplicator()
		defer func() {
			s.stats.SubRunsFailed = int(failed.Load())
		}()

		for {
			select {
			case o, ok := <-raw:
				if !ok {
					if ctx.Err() != nil {
						s.err = context.Cause(ctx)
					}
					return
				}
				if !dedup.Admit(o) {
					s.stats.Duplicates++
					a.metrics.IncOffersDuplicate()
					continue
				}
				select {
				case s.offers <- o:
					a.metrics.IncOffersEmitted()
				case <-ctx.Done():
					s.err = context.Cause(ctx)
					return
				}
			case <-ctx.Done():
				s.err = context.Cause(ctx)
				return
			}
		}
	}()

	return s
}

// subRun executes one provider query and forwards its offers to out.
func (a *Aggregator) subRun(ctx context.Context, sem *semaphore.Weighted, p providers.Provider, q types.ConcreteQuery, out chan<- types.Offer) (err error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return errAborted
		}
		defer sem.Release(1)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
		a.metrics.ObserveProviderLatency(p.Name(), time.Since(start).Seconds())
		if err != nil && !errors.Is(err, errAborted) {
			a.metrics.IncProviderErrors(p.Name())
			a.logger.Warn("provider search failed",
				"provider", p.Name(),
				"group_size", q.GroupSize,
				"error", err,
			)
		}
	}()

	subCtx := ctx
	if a.cfg.SubRunTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, a.cfg.SubRunTimeout)
		defer cancel()
	}

	for offer, err := range p.Search(subCtx, q) {
		if err != nil {
			if ctx.Err() != nil {
				return errAborted
			}
			return err
		}
		select {
		case out <- offer:
		case <-ctx.Done():
			return errAborted
		}
	}
	return nil
}
