package search

import (
	"context"
	"fmt"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// Batch runs a search to completion and returns every offer sorted by price.
// There is no timeout; an aggregation failure is returned instead of a partial result.
func (a *Aggregator) Batch(ctx context.Context, q types.LogicalQuery) (*types.Result, error) {
	stream := a.Run(ctx, q)

	var offers []types.Offer
	for offer := range stream.Offers() {
		offers = append(offers, offer)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("search aggregation failed: %w", err)
	}

	sorted := SortByPrice(offers)
	stats := stream.Stats()
	a.logger.Info("search completed",
		"ski_site", q.SkiSite,
		"group_size", q.GroupSize,
		"total", len(sorted),
		"sub_runs", stats.SubRunsTotal,
		"sub_runs_failed", stats.SubRunsFailed,
		"duplicates", stats.Duplicates,
	)

	return &types.Result{
		Offers: sorted,
		Total:  len(sorted),
		Stats:  stats,
	}, nil
}
