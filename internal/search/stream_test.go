package search_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alex-user-go/skisearch/internal/providers"
	"github.com/alex-user-go/skisearch/internal/search"
	"github.com/alex-user-go/skisearch/internal/search/types"
)

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (r *recorder) emit(ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) snapshot() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

func terminalEvents(events []types.Event) []types.Event {
	var out []types.Event
	for _, ev := range events {
		if ev.Type != types.EventOfferFound {
			out = append(out, ev)
		}
	}
	return out
}

func TestAggregator_Stream_NaturalCompletion(t *testing.T) {
	provider := &mockProvider{
		name: "provider1",
		offers: map[int][]types.Offer{
			9:  {offer("H1", 300, 9), offer("H2", 100, 9)},
			10: {offer("H3", 200, 10), offer("H1", 1, 10)},
		},
	}

	q := testQuery
	q.GroupSize = 9
	agg, metrics := newTestAggregator(t, []providers.Provider{provider}, search.DefaultConfig())

	rec := &recorder{}
	if err := agg.Stream(context.Background(), q, rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 3 offer events and 1 terminal event, got %d", len(events))
	}
	for _, ev := range events[:3] {
		if ev.Type != types.EventOfferFound || ev.Offer == nil {
			t.Errorf("expected offer event, got %+v", ev)
		}
	}

	last := events[3]
	if last.Type != types.EventSearchComplete {
		t.Fatalf("expected complete event, got %s", last.Type)
	}
	if last.Total != 3 || len(last.Offers) != 3 {
		t.Fatalf("expected 3 offers, got total=%d len=%d", last.Total, len(last.Offers))
	}
	for i := 1; i < len(last.Offers); i++ {
		if last.Offers[i-1].Price > last.Offers[i].Price {
			t.Errorf("offers not sorted by price: %+v", last.Offers)
		}
	}
	if got := testutil.ToFloat64(metrics.Finalized.WithLabelValues("complete")); got != 1 {
		t.Errorf("expected 1 complete finalization, got %v", got)
	}
}

func TestAggregator_Stream_Timeout(t *testing.T) {
	fast := &mockProvider{
		name:   "fast",
		offers: map[int][]types.Offer{10: {offer("early", 50, 10)}},
	}
	stuck := &mockProvider{name: "stuck", block: true}
	late := &mockProvider{
		name:   "late",
		offers: map[int][]types.Offer{10: {offer("late", 1, 10)}},
		delay:  map[int]time.Duration{10: 2 * time.Second},
	}

	cfg := search.DefaultConfig()
	cfg.StreamTimeout = 150 * time.Millisecond
	agg, metrics := newTestAggregator(t, []providers.Provider{fast, stuck, late}, cfg)

	q := testQuery
	q.GroupSize = 10

	rec := &recorder{}
	start := time.Now()
	if err := agg.Stream(context.Background(), q, rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < cfg.StreamTimeout {
		t.Errorf("finalized before the timeout: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("finalized too long after the timeout: %v", elapsed)
	}

	events := rec.snapshot()
	terminal := terminalEvents(events)
	if len(terminal) != 1 || terminal[0].Type != types.EventSearchComplete {
		t.Fatalf("expected exactly one complete event, got %+v", terminal)
	}
	if terminal[0].Total != 1 || terminal[0].Offers[0].ID != "early" {
		t.Errorf("expected only the early offer, got %+v", terminal[0].Offers)
	}
	if got := testutil.ToFloat64(metrics.Finalized.WithLabelValues("timeout")); got != 1 {
		t.Errorf("expected 1 timeout finalization, got %v", got)
	}

	// Still-running sub-runs are released once the search is finalized.
	deadline := time.Now().Add(time.Second)
	for stuck.cancelled.Load() == 0 || late.cancelled.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("in-flight sub-runs were not cancelled after finalization")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(rec.snapshot()); got != len(events) {
		t.Errorf("events emitted after finalization: %d -> %d", len(events), got)
	}
}

func TestAggregator_Stream_AllProvidersFail(t *testing.T) {
	list := []providers.Provider{
		&mockProvider{name: "provider1", err: errors.New("down")},
		&mockProvider{name: "provider2", err: errors.New("down")},
	}

	agg, _ := newTestAggregator(t, list, search.DefaultConfig())

	rec := &recorder{}
	if err := agg.Stream(context.Background(), testQuery, rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected a single terminal event, got %d", len(events))
	}
	if events[0].Type != types.EventSearchComplete || events[0].Total != 0 {
		t.Errorf("expected empty complete event, got %+v", events[0])
	}
}

func TestAggregator_Stream_NoProviders(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, search.DefaultConfig())

	rec := &recorder{}
	start := time.Now()
	if err := agg.Stream(context.Background(), testQuery, rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected immediate completion, took %v", elapsed)
	}

	events := rec.snapshot()
	if len(events) != 1 || events[0].Type != types.EventSearchComplete || events[0].Total != 0 {
		t.Errorf("expected a single empty complete event, got %+v", events)
	}
}

func TestAggregator_Stream_ContextCancelled(t *testing.T) {
	list := []providers.Provider{
		&mockProvider{name: "stuck", block: true},
	}

	agg, metrics := newTestAggregator(t, list, search.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	rec := &recorder{}
	if err := agg.Stream(ctx, testQuery, rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	terminal := terminalEvents(rec.snapshot())
	if len(terminal) != 1 {
		t.Fatalf("expected exactly one terminal event, got %+v", terminal)
	}
	if terminal[0].Type != types.EventError {
		t.Fatalf("expected error event, got %s", terminal[0].Type)
	}
	if terminal[0].Message != context.Canceled.Error() {
		t.Errorf("expected message %q, got %q", context.Canceled.Error(), terminal[0].Message)
	}
	if got := testutil.ToFloat64(metrics.Finalized.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error finalization, got %v", got)
	}
}

func TestAggregator_Stream_EmitError(t *testing.T) {
	list := []providers.Provider{
		&mockProvider{
			name:   "provider1",
			offers: map[int][]types.Offer{10: {offer("H1", 10, 10), offer("H2", 20, 10)}},
		},
	}

	agg, _ := newTestAggregator(t, list, search.DefaultConfig())

	q := testQuery
	q.GroupSize = 10

	writeErr := errors.New("client went away")
	rec := &recorder{err: writeErr}
	err := agg.Stream(context.Background(), q, rec.emit)
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if got := len(rec.snapshot()); got != 1 {
		t.Errorf("expected the run to stop after the first failed write, got %d events", got)
	}
}

func TestAggregator_Stream_SlowEmitDoesNotDelayTimeout(t *testing.T) {
	var offers []types.Offer
	for i := range 10 {
		offers = append(offers, offer(fmt.Sprintf("H%d", i), float64(100+i), 10))
	}
	list := []providers.Provider{
		&mockProvider{name: "provider1", offers: map[int][]types.Offer{10: offers}},
	}

	cfg := search.DefaultConfig()
	cfg.StreamTimeout = 100 * time.Millisecond
	agg, metrics := newTestAggregator(t, list, cfg)

	q := testQuery
	q.GroupSize = 10

	var hotels int
	var terminal []types.Event
	start := time.Now()
	err := agg.Stream(context.Background(), q, func(ev types.Event) error {
		if ev.Type == types.EventOfferFound {
			hotels++
			time.Sleep(60 * time.Millisecond)
			return nil
		}
		terminal = append(terminal, ev)
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hotels > 3 {
		t.Errorf("expected the cutoff to stop offer events, got %d", hotels)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("finalized too long after the timeout: %v", elapsed)
	}
	if len(terminal) != 1 || terminal[0].Type != types.EventSearchComplete {
		t.Fatalf("expected exactly one complete event, got %+v", terminal)
	}
	if terminal[0].Total != hotels {
		t.Errorf("expected the complete event to carry the %d emitted offers, got %d", hotels, terminal[0].Total)
	}
	if got := testutil.ToFloat64(metrics.Finalized.WithLabelValues("timeout")); got != 1 {
		t.Errorf("expected 1 timeout finalization, got %v", got)
	}
}
