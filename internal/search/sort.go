package search

import (
	"cmp"
	"slices"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// SortByPrice returns a copy of offers ordered by ascending price. Offers with
// equal prices keep their relative order.
func SortByPrice(offers []types.Offer) []types.Offer {
	sorted := make([]types.Offer, len(offers))
	copy(sorted, offers)
	slices.SortStableFunc(sorted, func(a, b types.Offer) int {
		return cmp.Compare(a.Price, b.Price)
	})
	return sorted
}
