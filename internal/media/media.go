// Package media persists fetched media bytes into a date/category-partitioned
// directory tree under a single storage root.
//
// Layout: {root}/{YYYY-MM-DD}/{images|videos}/{YYYY-MM-DD_HHMMSS}_{id}.{ext}
package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/mediavault/internal/models"
)

// DefaultDirPermissions defines the permissions for partition directories.
const DefaultDirPermissions = 0755

// timestampLayout is the filename timestamp prefix. Date plus seconds keeps
// listings sorted; the message id guarantees uniqueness within a second.
const timestampLayout = "2006-01-02_150405"

// Persister writes media bytes into the partition tree under Root. A partial
// file is never visible under its final name: bytes are written to a temp
// file in the target partition and renamed into place.
type Persister struct {
	Root string
}

// NewPersister creates a Persister rooted at the given directory.
func NewPersister(root string) *Persister {
	return &Persister{Root: root}
}

// Persist writes data durably and returns the storage path of the new file.
// Directory creation is idempotent. Failures are returned as *models.StorageError
// so the caller knows the id must not be marked processed.
func (p *Persister) Persist(rec models.MediaRecord, data []byte) (string, error) {
	ext, ok := rec.Category.Extension()
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownCategory, rec.Category)
	}
	if rec.ID == "" {
		return "", models.ErrEmptyMessageID
	}
	// The id is embedded in the filename; a separator would escape the
	// partition directory.
	if strings.ContainsAny(rec.ID, `/\`) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidMessageID, rec.ID)
	}

	day := rec.CapturedAt.Format(models.DateLayout)
	dir := filepath.Join(p.Root, day, string(rec.Category))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return "", &models.StorageError{Path: dir, Err: err}
	}

	name := fmt.Sprintf("%s_%s.%s", rec.CapturedAt.Format(timestampLayout), rec.ID, ext)
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", &models.StorageError{Path: dir, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &models.StorageError{Path: final, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		slog.Warn("Persister.Persist: sync failed", "path", tmpName, "error", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &models.StorageError{Path: final, Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", &models.StorageError{Path: final, Err: err}
	}

	slog.Debug("Persister.Persist: media written", "path", final, "bytes", len(data))
	return final, nil
}

// CountDay counts the persisted files for one calendar day, per category.
// Missing partitions count as zero; the summary job calls this for days that
// may have seen no traffic at all.
func (p *Persister) CountDay(date string) (images, videos int, err error) {
	images, err = p.countPartition(date, models.CategoryImages)
	if err != nil {
		return 0, 0, err
	}
	videos, err = p.countPartition(date, models.CategoryVideos)
	if err != nil {
		return 0, 0, err
	}
	return images, videos, nil
}

func (p *Persister) countPartition(date string, category models.Category) (int, error) {
	dir := filepath.Join(p.Root, date, string(category))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listing partition %s: %w", dir, err)
	}

	count := 0
	for _, entry := range entries {
		// Skip leftover temp files from interrupted writes.
		if entry.IsDir() || strings.Contains(entry.Name(), ".tmp-") {
			continue
		}
		count++
	}
	return count, nil
}
