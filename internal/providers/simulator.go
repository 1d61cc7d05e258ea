package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// DefaultSimulatorURL is the public HotelsSimulator endpoint.
const DefaultSimulatorURL = "https://gya7b1xubh.execute-api.eu-west-2.amazonaws.com/default/HotelsSimulator"

// StatusError is returned when the supplier answers with a non-OK status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrProviderUnavailable
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HotelsSimulator queries a HotelsSimulator-compatible HTTP endpoint.
type HotelsSimulator struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	maxRetries   uint64
	retryBackoff time.Duration
}

// Option configures a HotelsSimulator.
type Option func(*HotelsSimulator)

// WithTimeout sets the HTTP client timeout for a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(p *HotelsSimulator) {
		p.httpClient.Timeout = d
	}
}

// WithRetries sets the retry budget and the initial backoff.
func WithRetries(max uint64, backoff time.Duration) Option {
	return func(p *HotelsSimulator) {
		p.maxRetries = max
		if backoff > 0 {
			p.retryBackoff = backoff
		}
	}
}

// WithRateLimit throttles outgoing requests. A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *HotelsSimulator) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *HotelsSimulator) {
		p.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *HotelsSimulator) {
		p.httpClient = hc
	}
}

// NewHotelsSimulator creates a new HotelsSimulator provider.
func NewHotelsSimulator(name, url string, opts ...Option) *HotelsSimulator {
	p := &HotelsSimulator{
		name: name,
		url:  url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		retryBackoff: 200 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the provider name.
func (p *HotelsSimulator) Name() string {
	return p.name
}

// Search posts the query to the supplier. Nothing is sent until the sequence is iterated.
func (p *HotelsSimulator) Search(ctx context.Context, q types.ConcreteQuery) iter.Seq2[types.Offer, error] {
	return func(yield func(types.Offer, error) bool) {
		Seq(p.fetch(ctx, q))(yield)
	}
}

type simulatorRequest struct {
	Query simulatorQuery `json:"query"`
}

type simulatorQuery struct {
	SkiSite   int    `json:"ski_site"`
	FromDate  string `json:"from_date"`
	ToDate    string `json:"to_date"`
	GroupSize int    `json:"group_size"`
}

type simulatorResponse struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

type simulatorBody struct {
	Success        string          `json:"success"`
	Accommodations []accommodation `json:"accommodations"`
}

type accommodation struct {
	HotelCode               string `json:"HotelCode"`
	HotelName               string `json:"HotelName"`
	HotelDescriptiveContent *struct {
		Images []struct {
			URL       string `json:"URL"`
			MainImage string `json:"MainImage,omitempty"`
		} `json:"Images"`
	} `json:"HotelDescriptiveContent"`
	HotelInfo *struct {
		Position *struct {
			Latitude  string `json:"Latitude"`
			Longitude string `json:"Longitude"`
		} `json:"Position"`
		Rating string `json:"Rating"`
		Beds   string `json:"Beds"`
	} `json:"HotelInfo"`
	PricesInfo *struct {
		AmountAfterTax  string `json:"AmountAfterTax"`
		AmountBeforeTax string `json:"AmountBeforeTax"`
	} `json:"PricesInfo"`
}

func (p *HotelsSimulator) fetch(ctx context.Context, q types.ConcreteQuery) ([]types.Offer, error) {
	payload, err := json.Marshal(simulatorRequest{Query: simulatorQuery{
		SkiSite:   q.SkiSite,
		FromDate:  q.FromDate,
		ToDate:    q.ToDate,
		GroupSize: q.GroupSize,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	backoff := retry.WithMaxRetries(p.maxRetries, retry.WithJitterPercent(50, retry.NewExponential(p.retryBackoff)))

	var data []byte
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		body, err := p.post(ctx, payload)
		if err == nil {
			data = body
			return nil
		}

		var statusErr *StatusError
		if (errors.As(err, &statusErr) && !statusErr.Retryable()) || ctx.Err() != nil {
			return err
		}
		p.logger.Debug("retrying supplier request",
			"provider", p.name,
			"group_size", q.GroupSize,
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("HotelsSimulator API error: %w", err)
	}

	offers, err := decodeOffers(data, q.GroupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response from HotelsSimulator: %w", err)
	}
	return offers, nil
}

func (p *HotelsSimulator) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// decodeOffers maps a HotelsSimulator envelope to offers. The body field arrives
// either as an object or as a JSON-encoded string.
func decodeOffers(data []byte, groupSize int) ([]types.Offer, error) {
	var envelope simulatorResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.StatusCode != 0 && envelope.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: envelope.StatusCode, Body: string(envelope.Body)}
	}

	raw := bytes.TrimSpace(envelope.Body)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}

	var body simulatorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	offers := make([]types.Offer, 0, len(body.Accommodations))
	for _, a := range body.Accommodations {
		offers = append(offers, a.toOffer(groupSize))
	}
	return offers, nil
}

func (a accommodation) toOffer(groupSize int) types.Offer {
	images := []string{}
	if a.HotelDescriptiveContent != nil {
		for _, img := range a.HotelDescriptiveContent.Images {
			images = append(images, img.URL)
		}
	}

	var location string
	var stars int
	if a.HotelInfo != nil {
		if pos := a.HotelInfo.Position; pos != nil {
			location = pos.Latitude + ", " + pos.Longitude
		}
		stars = int(parseNumber(a.HotelInfo.Rating))
	}

	var price float64
	if a.PricesInfo != nil {
		price = parseNumber(a.PricesInfo.AmountAfterTax)
	}

	return types.Offer{
		ID:        a.HotelCode,
		Name:      a.HotelName,
		Price:     price,
		Images:    images,
		Amenities: []string{},
		Stars:     stars,
		Location:  location,
		GroupSize: groupSize,
	}
}

// parseNumber returns 0 for empty or malformed supplier numbers.
func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
