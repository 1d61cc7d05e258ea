package search

import "github.com/alex-user-go/skisearch/internal/search/types"

// Expander widens a logical query across group sizes. A room for a larger
// group still fits the requested one, so every size up to MaxGroupSize is asked.
type Expander struct {
	MaxGroupSize int
}

// Expand returns one concrete query per group size from q.GroupSize to
// MaxGroupSize inclusive, in ascending order. Sizes outside 1..MaxGroupSize
// expand to nothing.
func (e Expander) Expand(q types.LogicalQuery) []types.ConcreteQuery {
	if q.GroupSize < 1 || q.GroupSize > e.MaxGroupSize {
		return nil
	}

	queries := make([]types.ConcreteQuery, 0, e.MaxGroupSize-q.GroupSize+1)
	for size := q.GroupSize; size <= e.MaxGroupSize; size++ {
		queries = append(queries, q.WithGroupSize(size))
	}
	return queries
}
