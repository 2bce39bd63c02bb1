// Package ingest orchestrates per-event media ingestion: dedup claim,
// content fetch, durable persist, and mark-processed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/mediavault/internal/media"
	"github.com/user/mediavault/internal/models"
	"github.com/user/mediavault/internal/platform"
	"github.com/user/mediavault/internal/store"
)

// Persister writes media bytes durably and reports the storage path.
type Persister interface {
	Persist(rec models.MediaRecord, data []byte) (string, error)
}

// Compile-time check that the media persister satisfies the interface.
var _ Persister = (*media.Persister)(nil)

// Ingestor handles one media event end to end. An id is marked processed if
// and only if the persist step succeeded; fetch or persist failures release
// the claim so a redelivery can retry.
type Ingestor struct {
	Dedup        store.DedupRepo
	Fetcher      platform.ContentFetcher
	Persister    Persister
	FetchTimeout time.Duration

	// Now is the clock used for MediaRecord.CapturedAt; tests override it.
	Now func() time.Time
}

// NewIngestor creates an Ingestor with the default clock and fetch timeout.
func NewIngestor(dedup store.DedupRepo, fetcher platform.ContentFetcher, persister Persister) *Ingestor {
	return &Ingestor{
		Dedup:        dedup,
		Fetcher:      fetcher,
		Persister:    persister,
		FetchTimeout: platform.DefaultFetchTimeout,
		Now:          time.Now,
	}
}

// Ingest persists the media attached to event exactly once per message id.
// Duplicate deliveries (including concurrent ones) return nil without side
// effects; the atomic claim guarantees a single winner per id.
func (i *Ingestor) Ingest(ctx context.Context, event models.MessageEvent, category models.Category) error {
	if event.ID == "" {
		return models.ErrEmptyMessageID
	}
	log := slog.With("message_id", event.ID, "category", category)

	processed, err := i.Dedup.IsProcessed(event.ID)
	if err != nil {
		return fmt.Errorf("dedup lookup for %s: %w", event.ID, err)
	}
	if processed {
		log.Debug("Ingestor.Ingest: duplicate delivery, skipping")
		return nil
	}

	claimed, err := i.Dedup.Claim(event.ID)
	if err != nil {
		return fmt.Errorf("claiming %s: %w", event.ID, err)
	}
	if !claimed {
		log.Debug("Ingestor.Ingest: lost claim to concurrent delivery, skipping")
		return nil
	}

	fetchCtx := ctx
	if i.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, i.FetchTimeout)
		defer cancel()
	}

	data, err := i.Fetcher.FetchContent(fetchCtx, event.ID)
	if err != nil {
		i.release(event.ID, log)
		return &models.FetchError{MessageID: event.ID, Err: err}
	}

	rec := models.MediaRecord{
		ID:         event.ID,
		Category:   category,
		CapturedAt: i.Now(),
	}
	path, err := i.Persister.Persist(rec, data)
	if err != nil {
		i.release(event.ID, log)
		return err
	}
	rec.StoragePath = path

	if err := i.Dedup.MarkProcessed(event.ID); err != nil {
		// The file is on disk but the id is not marked; a redelivery will
		// produce a harmless duplicate file rather than lose data.
		return fmt.Errorf("marking %s processed: %w", event.ID, err)
	}

	log.Info("Ingestor.Ingest: media persisted", "path", path, "bytes", len(data))
	return nil
}

func (i *Ingestor) release(messageID string, log *slog.Logger) {
	if err := i.Dedup.Release(messageID); err != nil {
		log.Error("Ingestor.release: failed to release claim", "error", err)
	}
}
