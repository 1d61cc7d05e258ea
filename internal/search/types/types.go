package types

// Offer is one normalized accommodation result from a supplier.
type Offer struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Images    []string `json:"images"`
	Amenities []string `json:"amenities"`
	Stars     int      `json:"stars"`
	Rating    float64  `json:"rating"`
	Location  string   `json:"location"`
	GroupSize int      `json:"group_size"`
}

// LogicalQuery is the caller's search request before group-size expansion.
type LogicalQuery struct {
	SkiSite   int    `json:"ski_site"`
	FromDate  string `json:"from_date"`
	ToDate    string `json:"to_date"`
	GroupSize int    `json:"group_size"`
}

// ConcreteQuery is a LogicalQuery pinned to one group size, as sent to a supplier.
type ConcreteQuery LogicalQuery

// WithGroupSize returns a copy of q pinned to size.
func (q LogicalQuery) WithGroupSize(size int) ConcreteQuery {
	c := ConcreteQuery(q)
	c.GroupSize = size
	return c
}

// Result represents a finalized batch of offers.
type Result struct {
	Offers []Offer `json:"hotels"`
	Total  int     `json:"total"`
	Stats  Stats   `json:"-"`
}

// Stats describes how a run went.
type Stats struct {
	SubRunsTotal  int
	SubRunsFailed int
	Duplicates    int
}

// EventType identifies a streaming event.
type EventType string

const (
	EventOfferFound     EventType = "hotel"
	EventSearchComplete EventType = "complete"
	EventError          EventType = "error"
)

// Event is one item of a streaming search.
type Event struct {
	Type    EventType
	Offer   *Offer
	Offers  []Offer
	Total   int
	Message string
}
