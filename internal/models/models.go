// Package models defines the core data structures for mediavault.
//
// It includes types for inbound webhook events, persisted media records, and
// daily summaries, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// EventKind classifies an inbound message event by its payload.
type EventKind string

const (
	// EventKindText carries plain text content; logged, never persisted.
	EventKindText EventKind = "text"
	// EventKindImage carries a reference to fetchable image bytes.
	EventKindImage EventKind = "image"
	// EventKindVideo carries a reference to fetchable video bytes.
	EventKindVideo EventKind = "video"
)

// Category classifies persisted media, determining the storage subpath
// and file extension.
type Category string

const (
	// CategoryImages is the storage category for image media.
	CategoryImages Category = "images"
	// CategoryVideos is the storage category for video media.
	CategoryVideos Category = "videos"
)

// categoryExtensions maps each category to its file extension. Kept as a
// lookup table so future message kinds only need a new entry here.
var categoryExtensions = map[Category]string{
	CategoryImages: "jpg",
	CategoryVideos: "mp4",
}

// kindCategories maps fetchable event kinds to their storage category.
var kindCategories = map[EventKind]Category{
	EventKindImage: CategoryImages,
	EventKindVideo: CategoryVideos,
}

// Extension returns the file extension for the category, without a dot.
func (c Category) Extension() (string, bool) {
	ext, ok := categoryExtensions[c]
	return ext, ok
}

// CategoryForKind returns the storage category for an event kind. The second
// return value is false for kinds that carry no binary payload.
func CategoryForKind(k EventKind) (Category, bool) {
	c, ok := kindCategories[k]
	return c, ok
}

// Error variables for better error handling and testability
var (
	ErrEmptyMessageID   = errors.New("message id cannot be empty")
	ErrInvalidMessageID = errors.New("message id contains a path separator")
	ErrUnknownCategory  = errors.New("unknown media category")
	ErrNoSummary        = errors.New("no summary recorded for date")
)

// MessageEvent is one inbound event decoded from the webhook payload.
// Immutable once received. ID is the platform-assigned message identifier
// and serves as the deduplication key.
type MessageEvent struct {
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

// MediaRecord describes one durably persisted media item. Created at most
// once per unique message id; never mutated.
type MediaRecord struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	CapturedAt  time.Time `json:"captured_at"`
	StoragePath string    `json:"storage_path"`
}

// DailySummary aggregates the media persisted on one calendar day. It is a
// derived, recomputable view of the partition tree, never a source of truth.
type DailySummary struct {
	Date       string `json:"date"` // YYYY-MM-DD
	ImageCount int    `json:"image_count"`
	VideoCount int    `json:"video_count"`
}

// FetchError indicates that fetching raw media content from the platform
// failed or timed out. The affected id must not be marked processed.
type FetchError struct {
	MessageID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching content for message %s: %v", e.MessageID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError indicates that a filesystem write failed. The affected id
// must not be marked processed.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DateLayout is the calendar-day format used for partitions and summaries.
const DateLayout = "2006-01-02"
