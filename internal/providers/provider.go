package providers

import (
	"context"
	"errors"
	"iter"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// Provider defines the interface for accommodation suppliers.
type Provider interface {
	// Name identifies the supplier in logs and metrics.
	Name() string

	// Search runs one concrete query. The sequence ends after the last offer,
	// or with a single pair carrying a non-nil error.
	Search(ctx context.Context, q types.ConcreteQuery) iter.Seq2[types.Offer, error]
}

// ErrProviderUnavailable is returned when a provider answers with a non-OK status.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Seq adapts an eagerly fetched page of offers to the Provider sequence contract.
func Seq(offers []types.Offer, err error) iter.Seq2[types.Offer, error] {
	return func(yield func(types.Offer, error) bool) {
		if err != nil {
			yield(types.Offer{}, err)
			return
		}
		for _, o := range offers {
			if !yield(o, nil) {
				return
			}
		}
	}
}
