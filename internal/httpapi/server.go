// Package httpapi exposes the sync core over HTTP: the push endpoint, the
// change feed, a websocket change-notification stream, and a health probe.
// Callers authenticate with HS256 bearer tokens whose sub claim is the user
// id; all sync state is scoped to that user.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/summitlabs/summit-api/internal/checkin"
	"github.com/summitlabs/summit-api/internal/config"
	"github.com/summitlabs/summit-api/internal/notify"
)

// maxPushItems bounds a single push batch. Clients with more pending
// mutations split them across calls; each batch commits atomically on its own.
const maxPushItems = 1000

// Server wires HTTP routes to the sync core. Config is read through the
// Holder on every request so live reloads take effect without a restart.
type Server struct {
	holder     *config.Holder
	reconciler *checkin.Reconciler
	feed       *checkin.Feed
	hub        *notify.Hub
	logger     *slog.Logger
}

// NewServer creates a Server. A nil hub disables websocket notifications; a
// nil logger falls back to slog.Default().
func NewServer(
	holder *config.Holder,
	reconciler *checkin.Reconciler,
	feed *checkin.Feed,
	hub *notify.Hub,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		holder:     holder,
		reconciler: reconciler,
		feed:       feed,
		hub:        hub,
		logger:     logger,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /sync/checkins/push", s.withUser(s.handlePush))
	mux.HandleFunc("GET /sync/checkins/changes", s.withUser(s.handleChanges))
	mux.HandleFunc("GET /sync/checkins/watch", s.withUser(s.handleWatch))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withUser authenticates the bearer token and passes the resolved user id
// to the wrapped handler.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, checkin.UserID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.holder.Config()

		user, authErr := verifyBearer(r.Header.Get("Authorization"), cfg.Auth.TokenSecret, time.Now().UTC())
		if authErr != nil {
			writeError(w, authErr.status, authErr.code, authErr.message)

			return
		}

		next(w, r, user)
	}
}

type pushRequest struct {
	Items []checkin.PushItem `json:"items"`
}

type pushResponse struct {
	Results []checkin.PushResult `json:"results"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, user checkin.UserID) {
	cfg := s.holder.Config()

	body := http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes)
	defer body.Close()

	var req pushRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")

			return
		}

		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")

		return
	}

	if len(req.Items) > maxPushItems {
		writeError(w, http.StatusBadRequest, "bad_request",
			"push batch exceeds "+strconv.Itoa(maxPushItems)+" items")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Sync.RequestTimeoutValue())
	defer cancel()

	results, err := s.reconciler.Push(ctx, user, req.Items)
	if err != nil {
		s.writeSyncError(w, err, user)

		return
	}

	if s.hub != nil && anyApplied(results) {
		s.hub.Publish(user)
	}

	writeJSON(w, http.StatusOK, pushResponse{Results: results})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request, user checkin.UserID) {
	cfg := s.holder.Config()

	q := r.URL.Query()

	var since *time.Time

	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid since: expected RFC 3339 timestamp")

			return
		}

		since = &parsed
	}

	pageSize := 0

	if raw := q.Get("pageSize"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid pageSize: expected positive integer")

			return
		}

		pageSize = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Sync.RequestTimeoutValue())
	defer cancel()

	page, err := s.feed.Changes(ctx, user, since, q.Get("afterId"), pageSize)
	if err != nil {
		s.writeSyncError(w, err, user)

		return
	}

	writeJSON(w, http.StatusOK, page)
}

// writeSyncError maps sync core errors to HTTP statuses. Storage failures
// and timeouts are retryable 5xx: nothing was committed, so the client
// replays the same batch and idempotency deduplicates whatever did land on
// an earlier attempt.
func (s *Server) writeSyncError(w http.ResponseWriter, err error, user checkin.UserID) {
	switch {
	case errors.Is(err, checkin.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "habit not found or not owned by caller")
	case errors.Is(err, checkin.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, "bad_request", "every item needs a clientRequestId and an id")
	case errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "retry_later", "storage deadline exceeded, retry the request")
	default:
		s.logger.Error("sync request failed",
			slog.String("user_id", user.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error, retry the request")
	}
}

func anyApplied(results []checkin.PushResult) bool {
	for i := range results {
		if results[i].Status == checkin.StatusApplied {
			return true
		}
	}

	return false
}
