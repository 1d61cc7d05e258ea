package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alex-user-go/skisearch/internal/middleware"
	"github.com/alex-user-go/skisearch/internal/obs"
	"github.com/alex-user-go/skisearch/internal/resorts"
	"github.com/alex-user-go/skisearch/internal/search"
	"github.com/alex-user-go/skisearch/internal/search/cache"
	"github.com/alex-user-go/skisearch/internal/search/types"
)

// ResortsMaxAge is how long clients may cache the resort list.
const ResortsMaxAge = time.Hour

// Handler handles HTTP requests.
type Handler struct {
	aggregator *search.Aggregator
	cache      *cache.Cache
	metrics    *obs.Metrics
	logger     *slog.Logger
	validate   *validator.Validate
}

// New creates a new Handler.
func New(
	aggregator *search.Aggregator,
	searchCache *cache.Cache,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		aggregator: aggregator,
		cache:      searchCache,
		metrics:    metrics,
		logger:     logger,
		validate:   NewValidator(),
	}
}

// errorResponse is the JSON error body shared by every endpoint.
type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    any    `json:"message"`
	Error      string `json:"error"`
}

type offerEvent struct {
	Type types.EventType `json:"type"`
	Data types.Offer     `json:"data"`
}

type completeEvent struct {
	Type  types.EventType `json:"type"`
	Data  []types.Offer   `json:"data"`
	Total int             `json:"total"`
}

type errorEvent struct {
	Type types.EventType `json:"type"`
	errorResponse
}

// SearchStream handles POST /hotels/search. Offers are pushed as server-sent
// events while suppliers answer, followed by one complete or error event.
func (h *Handler) SearchStream(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncRequests("stream")
	requestID := middleware.RequestID(r.Context())

	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	q := req.Query()

	rc := http.NewResponseController(w)
	// The stream has its own cutoff; the server write timeout must not cut it first.
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	err := h.aggregator.Stream(r.Context(), q, func(ev types.Event) error {
		return writeEvent(w, rc, eventPayload(ev))
	})
	if err != nil {
		h.logger.Debug("stream aborted",
			"request_id", requestID,
			"ski_site", q.SkiSite,
			"resort", resortName(q.SkiSite),
			"error", err,
		)
	}
}

func eventPayload(ev types.Event) any {
	switch ev.Type {
	case types.EventOfferFound:
		return offerEvent{Type: ev.Type, Data: *ev.Offer}
	case types.EventSearchComplete:
		offers := ev.Offers
		if offers == nil {
			offers = []types.Offer{}
		}
		return completeEvent{Type: ev.Type, Data: offers, Total: ev.Total}
	default:
		return errorEvent{Type: types.EventError, errorResponse: errorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    ev.Message,
			Error:      http.StatusText(http.StatusInternalServerError),
		}}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// SearchSync handles POST /hotels/search/sync and answers once every supplier is done.
func (h *Handler) SearchSync(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncRequests("sync")
	requestID := middleware.RequestID(r.Context())

	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	q := req.Query()

	result, cacheHit, err := h.cache.GetOrFetch(r.Context(), cache.Key(q), func(ctx context.Context) (*types.Result, error) {
		return h.aggregator.Batch(ctx, q)
	})
	if err != nil {
		h.logger.Error("error in synchronous hotel search",
			"request_id", requestID,
			"ski_site", q.SkiSite,
			"resort", resortName(q.SkiSite),
			"group_size", q.GroupSize,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Failed to search hotels")
		return
	}
	if cacheHit {
		h.metrics.IncCacheHits()
	}

	// Cached results are shared between requests and must not be modified.
	resp := types.Result{Offers: []types.Offer{}}
	if result != nil {
		resp.Total = result.Total
		if result.Offers != nil {
			resp.Offers = result.Offers
		}
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// SkiResorts handles GET /hotels/ski-resorts.
func (h *Handler) SkiResorts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ResortsMaxAge.Seconds())))
	writeJSON(w, http.StatusOK, resorts.All(), h.logger)
}

func resortName(id int) string {
	if r, ok := resorts.Lookup(id); ok {
		return r.Name
	}
	return "unknown"
}

// decode parses the request body and writes a 400 response when it is invalid.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (SearchRequest, bool) {
	req, err := DecodeSearchRequest(r, h.validate)
	if err == nil {
		return req, true
	}

	h.logger.Debug("invalid search request",
		"request_id", middleware.RequestID(r.Context()),
		"error", err,
	)

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		writeError(w, http.StatusBadRequest, reqErr.Messages)
		return req, false
	}
	writeError(w, http.StatusBadRequest, []string{err.Error()})
	return req, false
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Can't change status after WriteHeader, just log
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response. message is a string or a list of strings.
func writeError(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}
