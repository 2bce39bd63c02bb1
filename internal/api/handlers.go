// Package api provides HTTP handlers for mediavault endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/mediavault/internal/models"
	"github.com/user/mediavault/internal/platform"
)

// MaxCallbackBodyBytes caps the webhook request body size.
const MaxCallbackBodyBytes = 10 << 20 // 10 MiB

// callbackHandler receives platform webhook deliveries (POST /callback).
// Signature verification runs before anything else; a bad signature yields
// 400 and the core is never entered. Once the signature passes the response
// is always 200: webhook delivery is fire-and-forget, and per-event failures
// are logged rather than propagated so the platform does not re-deliver the
// whole batch for one bad event.
func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.callbackHandler: processing callback", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.callbackHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxCallbackBodyBytes)
	events, err := s.parser.ParseCallback(r)
	if errors.Is(err, platform.ErrInvalidSignature) {
		slog.Warn("Server.callbackHandler: signature verification failed",
			"signature_set", r.Header.Get(platform.SignatureHeader) != "")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid signature"))
		return
	}
	if err != nil {
		slog.Warn("Server.callbackHandler: failed to parse callback", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid webhook payload"))
		return
	}

	for _, event := range events {
		if err := s.router.Dispatch(r.Context(), event); err != nil {
			// Local to one event; subsequent events still get processed.
			logEventError(event, err)
		}
	}

	slog.Debug("Server.callbackHandler: callback processed", "events", len(events))
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func logEventError(event models.MessageEvent, err error) {
	var fetchErr *models.FetchError
	var storageErr *models.StorageError
	switch {
	case errors.As(err, &fetchErr):
		slog.Error("Server.callbackHandler: content fetch failed, id left unprocessed",
			"message_id", event.ID, "error", err)
	case errors.As(err, &storageErr):
		slog.Error("Server.callbackHandler: media write failed, id left unprocessed",
			"message_id", event.ID, "error", err)
	default:
		slog.Error("Server.callbackHandler: event ingestion failed",
			"message_id", event.ID, "error", err)
	}
}

// summaryRunHandler triggers a summary computation (POST /summary/run).
// The date query parameter defaults to today; re-running a date overwrites
// its summary, which makes this safe for manual testing.
func (s *Server) summaryRunHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.summaryRunHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, want YYYY-MM-DD"))
		return
	}

	result, err := s.summaries.Run(date)
	if err != nil {
		slog.Error("Server.summaryRunHandler: summary run failed", "date", date, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute summary"))
		return
	}

	slog.Info("Server.summaryRunHandler: summary computed", "date", date)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Summary computed", result))
}

// summaryHandler returns a previously recorded summary (GET /summary?date=...).
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.summaryHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: date"))
		return
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, want YYYY-MM-DD"))
		return
	}

	result, err := s.summaries.Read(date)
	if errors.Is(err, models.ErrNoSummary) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No summary recorded for date"))
		return
	}
	if err != nil {
		slog.Error("Server.summaryHandler: summary read failed", "date", date, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read summary"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// healthHandler provides a health check endpoint for monitoring (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}
