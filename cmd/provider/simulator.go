package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// profile shapes how a simulated supplier behaves.
type profile struct {
	minLatency     time.Duration
	maxLatency     time.Duration
	failureRate    float64
	stringBodyRate float64 // share of responses whose body is a JSON-encoded string
}

var profiles = map[string]profile{
	"steady": {minLatency: 50 * time.Millisecond, maxLatency: 200 * time.Millisecond, failureRate: 0.1, stringBodyRate: 0.5},
	"slow":   {minLatency: 75 * time.Millisecond, maxLatency: 300 * time.Millisecond, failureRate: 0.15, stringBodyRate: 0.5},
	"flaky":  {minLatency: 60 * time.Millisecond, maxLatency: 240 * time.Millisecond, failureRate: 0.3, stringBodyRate: 1},
}

// property is one accommodation a simulated supplier can offer.
type property struct {
	code      string
	name      string
	beds      int
	rating    int
	basePrice float64 // per guest
	lat, lon  string
}

// catalog lists the properties at each ski site.
var catalog = map[int][]property{
	1: {
		{code: "VT01", name: "Hotel Le Val Thorens", beds: 4, rating: 4, basePrice: 180, lat: "45.2981", lon: "6.5797"},
		{code: "VT02", name: "Chalet Altitude", beds: 8, rating: 5, basePrice: 260, lat: "45.2975", lon: "6.5821"},
		{code: "VT03", name: "Residence Les Balcons", beds: 6, rating: 3, basePrice: 120, lat: "45.2969", lon: "6.5803"},
	},
	2: {
		{code: "CO01", name: "Les Airelles", beds: 2, rating: 5, basePrice: 450, lat: "45.4154", lon: "6.6347"},
		{code: "CO02", name: "Chalet Pearl", beds: 10, rating: 5, basePrice: 390, lat: "45.4148", lon: "6.6361"},
		{code: "CO03", name: "Hotel des Neiges", beds: 4, rating: 4, basePrice: 210, lat: "45.4160", lon: "6.6335"},
	},
	3: {
		{code: "TI01", name: "Village Montana", beds: 6, rating: 4, basePrice: 160, lat: "45.4683", lon: "6.9058"},
		{code: "TI02", name: "Le Lodge Tignes", beds: 12, rating: 3, basePrice: 95, lat: "45.4691", lon: "6.9072"},
	},
	4: {
		{code: "LP01", name: "Residence Aspen", beds: 5, rating: 3, basePrice: 90, lat: "45.5071", lon: "6.6781"},
		{code: "LP02", name: "Chalet des Cimes", beds: 9, rating: 4, basePrice: 140, lat: "45.5064", lon: "6.6794"},
	},
	5: {
		{code: "CH01", name: "Hameau Albert 1er", beds: 3, rating: 5, basePrice: 320, lat: "45.9237", lon: "6.8694"},
		{code: "CH02", name: "Chalet Mont Blanc", beds: 7, rating: 4, basePrice: 200, lat: "45.9245", lon: "6.8701"},
		{code: "CH03", name: "Hotel Le Refuge", beds: 10, rating: 2, basePrice: 70, lat: "45.9229", lon: "6.8712"},
	},
}

type searchRequest struct {
	Query struct {
		SkiSite   int    `json:"ski_site"`
		FromDate  string `json:"from_date"`
		ToDate    string `json:"to_date"`
		GroupSize int    `json:"group_size"`
	} `json:"query"`
}

type envelope struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

type searchBody struct {
	Success        string          `json:"success"`
	Accommodations []accommodation `json:"accommodations"`
}

type accommodation struct {
	HotelCode               string `json:"HotelCode"`
	HotelName               string `json:"HotelName"`
	HotelDescriptiveContent struct {
		Images []image `json:"Images"`
	} `json:"HotelDescriptiveContent"`
	HotelInfo struct {
		Position struct {
			Latitude  string `json:"Latitude"`
			Longitude string `json:"Longitude"`
		} `json:"Position"`
		Rating string `json:"Rating"`
		Beds   string `json:"Beds"`
	} `json:"HotelInfo"`
	PricesInfo struct {
		AmountAfterTax  string `json:"AmountAfterTax"`
		AmountBeforeTax string `json:"AmountBeforeTax"`
	} `json:"PricesInfo"`
}

type image struct {
	URL       string `json:"URL"`
	MainImage string `json:"MainImage,omitempty"`
}

// Simulator serves the HotelsSimulator wire format with random latency and failures.
type Simulator struct {
	profile profile
	logger  *slog.Logger
}

// NewSimulator creates a new Simulator.
func NewSimulator(p profile, logger *slog.Logger) *Simulator {
	return &Simulator{profile: p, logger: logger}
}

// search simulates a supplier lookup with random latency and potential failures.
func (s *Simulator) search(ctx context.Context, skiSite, groupSize int) ([]accommodation, error) {
	latency := s.profile.minLatency
	if spread := s.profile.maxLatency - s.profile.minLatency; spread > 0 {
		latency += rand.N(spread)
	}

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	if rand.Float64() < s.profile.failureRate {
		return nil, errProviderUnavailable
	}

	return available(skiSite, groupSize), nil
}

// available returns the properties at skiSite that sleep at least groupSize guests.
func available(skiSite, groupSize int) []accommodation {
	var out []accommodation
	for _, p := range catalog[skiSite] {
		if p.beds < groupSize {
			continue
		}

		var a accommodation
		a.HotelCode = p.code
		a.HotelName = p.name
		a.HotelDescriptiveContent.Images = []image{
			{URL: fmt.Sprintf("https://images.example.com/%s/1.jpg", p.code), MainImage: "True"},
			{URL: fmt.Sprintf("https://images.example.com/%s/2.jpg", p.code)},
		}
		a.HotelInfo.Position.Latitude = p.lat
		a.HotelInfo.Position.Longitude = p.lon
		a.HotelInfo.Rating = strconv.Itoa(p.rating)
		a.HotelInfo.Beds = strconv.Itoa(p.beds)

		beforeTax := p.basePrice * float64(groupSize) * (0.9 + rand.Float64()*0.2)
		a.PricesInfo.AmountBeforeTax = strconv.FormatFloat(beforeTax, 'f', 2, 64)
		a.PricesInfo.AmountAfterTax = strconv.FormatFloat(beforeTax*1.2, 'f', 2, 64)

		out = append(out, a)
	}
	return out
}

// ServeHTTP handles HTTP requests for this supplier.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	q := req.Query
	if q.SkiSite <= 0 || q.GroupSize <= 0 || q.FromDate == "" || q.ToDate == "" {
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	accommodations, err := s.search(r.Context(), q.SkiSite, q.GroupSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if accommodations == nil {
		accommodations = []accommodation{}
	}

	var body any = searchBody{Success: "true", Accommodations: accommodations}
	if rand.Float64() < s.profile.stringBodyRate {
		encoded, err := json.Marshal(body)
		if err != nil {
			s.logger.Error("failed to encode body", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		body = string(encoded)
	}

	// Return JSON response
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(envelope{StatusCode: http.StatusOK, Body: body}); err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
}
