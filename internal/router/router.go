// Package router classifies inbound message events and dispatches each one
// to the matching handler.
package router

import (
	"context"
	"log/slog"

	"github.com/user/mediavault/internal/models"
)

// MediaIngestor persists a media-bearing event under a storage category.
type MediaIngestor interface {
	Ingest(ctx context.Context, event models.MessageEvent, category models.Category) error
}

// Router dispatches events by kind: text is logged only, image and video go
// to the ingestor with their mapped category, and unknown kinds are dropped.
// The platform may introduce new message kinds at any time; an unsupported
// kind must never break ingestion of known kinds.
type Router struct {
	Ingestor MediaIngestor
}

// NewRouter creates a Router over the given ingestor.
func NewRouter(ingestor MediaIngestor) *Router {
	return &Router{Ingestor: ingestor}
}

// Dispatch routes one event. Text and unknown kinds always return nil; media
// kinds return the ingestion error, which the caller logs without failing the
// webhook delivery.
func (r *Router) Dispatch(ctx context.Context, event models.MessageEvent) error {
	log := slog.With("message_id", event.ID, "kind", event.Kind)

	if event.Kind == models.EventKindText {
		// Text events carry no binary payload: logged, never deduplicated
		// or persisted.
		log.Info("Router.Dispatch: text message received", "text", event.Text)
		return nil
	}

	category, ok := models.CategoryForKind(event.Kind)
	if !ok {
		log.Info("Router.Dispatch: unsupported message kind, dropping")
		return nil
	}

	return r.Ingestor.Ingest(ctx, event, category)
}
