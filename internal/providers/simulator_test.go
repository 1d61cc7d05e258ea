package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alex-user-go/skisearch/internal/providers"
	"github.com/alex-user-go/skisearch/internal/search/types"
)

const accommodationsJSON = `{"success":"true","accommodations":[{
	"HotelCode":"H1",
	"HotelName":"Chalet Altitude",
	"HotelDescriptiveContent":{"Images":[{"URL":"https://img/1.jpg","MainImage":"True"},{"URL":"https://img/2.jpg"}]},
	"HotelInfo":{"Position":{"Latitude":"45.29","Longitude":"6.58"},"Rating":"5","Beds":"8"},
	"PricesInfo":{"AmountAfterTax":"1234.50","AmountBeforeTax":"1000"}
},{
	"HotelCode":"H2",
	"HotelName":"Bare Listing"
}]}`

var query = types.LogicalQuery{SkiSite: 1, FromDate: "01/03/2025", ToDate: "08/03/2025", GroupSize: 4}.WithGroupSize(6)

var wantOffers = []types.Offer{
	{
		ID:        "H1",
		Name:      "Chalet Altitude",
		Price:     1234.5,
		Images:    []string{"https://img/1.jpg", "https://img/2.jpg"},
		Amenities: []string{},
		Stars:     5,
		Location:  "45.29, 6.58",
		GroupSize: 6,
	},
	{
		ID:        "H2",
		Name:      "Bare Listing",
		Images:    []string{},
		Amenities: []string{},
		GroupSize: 6,
	},
}

func newSimulator(url string, opts ...providers.Option) *providers.HotelsSimulator {
	opts = append([]providers.Option{providers.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return providers.NewHotelsSimulator("test", url, opts...)
}

func collect(ctx context.Context, t *testing.T, p providers.Provider) ([]types.Offer, error) {
	t.Helper()
	var offers []types.Offer
	for o, err := range p.Search(ctx, query) {
		if err != nil {
			return offers, err
		}
		offers = append(offers, o)
	}
	return offers, nil
}

func TestHotelsSimulator_Search(t *testing.T) {
	stringBody, _ := json.Marshal(accommodationsJSON)

	tests := []struct {
		name    string
		reply   string
		want    []types.Offer
		wantErr string
	}{
		{
			name:  "object body",
			reply: `{"statusCode":200,"body":` + accommodationsJSON + `}`,
			want:  wantOffers,
		},
		{
			name:  "string encoded body",
			reply: `{"statusCode":200,"body":` + string(stringBody) + `}`,
			want:  wantOffers,
		},
		{
			name:  "null body",
			reply: `{"statusCode":200,"body":null}`,
		},
		{
			name:  "missing body",
			reply: `{"statusCode":200}`,
		},
		{
			name:  "no accommodations",
			reply: `{"statusCode":200,"body":{"success":"true"}}`,
		},
		{
			name:    "envelope error status",
			reply:   `{"statusCode":500,"body":"boom"}`,
			wantErr: "provider returned status 500",
		},
		{
			name:    "invalid json",
			reply:   `<html>`,
			wantErr: "failed to parse response from HotelsSimulator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.reply)
			}))
			defer srv.Close()

			got, err := collect(context.Background(), t, newSimulator(srv.URL))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("offers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHotelsSimulator_RequestShape(t *testing.T) {
	var got struct {
		Query map[string]any `json:"query"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"statusCode":200,"body":{"accommodations":[]}}`)
	}))
	defer srv.Close()

	if _, err := collect(context.Background(), t, newSimulator(srv.URL)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"ski_site":   float64(1),
		"from_date":  "01/03/2025",
		"to_date":    "08/03/2025",
		"group_size": float64(6),
	}
	if diff := cmp.Diff(want, got.Query); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestHotelsSimulator_Lazy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"statusCode":200,"body":null}`)
	}))
	defer srv.Close()

	seq := newSimulator(srv.URL).Search(context.Background(), query)
	if got := calls.Load(); got != 0 {
		t.Fatalf("request sent before iteration: %d calls", got)
	}
	for range seq {
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call after iteration, got %d", got)
	}
}

func TestHotelsSimulator_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   uint64
		wantCalls int32
		wantCode  int
	}{
		{
			name:      "recovers after server error",
			statuses:  []int{http.StatusInternalServerError, http.StatusOK},
			retries:   2,
			wantCalls: 2,
		},
		{
			name:      "retries too many requests",
			statuses:  []int{http.StatusTooManyRequests, http.StatusOK},
			retries:   1,
			wantCalls: 2,
		},
		{
			name:      "gives up after budget",
			statuses:  []int{503, 503, 503, 503},
			retries:   2,
			wantCalls: 3,
			wantCode:  503,
		},
		{
			name:      "client error is not retried",
			statuses:  []int{http.StatusBadRequest, http.StatusOK},
			retries:   3,
			wantCalls: 1,
			wantCode:  400,
		},
		{
			name:      "no retries by default",
			statuses:  []int{http.StatusBadGateway, http.StatusOK},
			wantCalls: 1,
			wantCode:  502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				status := tt.statuses[min(n, len(tt.statuses)-1)]
				if status != http.StatusOK {
					http.Error(w, "unavailable", status)
					return
				}
				_, _ = io.WriteString(w, `{"statusCode":200,"body":`+accommodationsJSON+`}`)
			}))
			defer srv.Close()

			p := newSimulator(srv.URL, providers.WithRetries(tt.retries, time.Millisecond))
			offers, err := collect(context.Background(), t, p)

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(offers) != 2 {
					t.Errorf("expected 2 offers, got %d", len(offers))
				}
				return
			}

			var statusErr *providers.StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", statusErr.StatusCode, tt.wantCode)
			}
			if !errors.Is(err, providers.ErrProviderUnavailable) {
				t.Error("expected error to match ErrProviderUnavailable")
			}
		})
	}
}

func TestHotelsSimulator_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"statusCode":200,"body":null}`)
	}))
	defer srv.Close()

	p := newSimulator(srv.URL, providers.WithRateLimit(20, 1))

	start := time.Now()
	for range 3 {
		if _, err := collect(context.Background(), t, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// One token up front, then one every 50ms.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("requests were not throttled: %v", elapsed)
	}
}

func TestHotelsSimulator_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := newSimulator(srv.URL, providers.WithRetries(5, 10*time.Millisecond))
	start := time.Now()
	_, err := collect(ctx, t, p)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestHotelsSimulator_Name(t *testing.T) {
	if got := providers.NewHotelsSimulator("alps", "http://localhost").Name(); got != "alps" {
		t.Errorf("Name() = %q, want %q", got, "alps")
	}
}
