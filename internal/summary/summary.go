// Package summary computes and writes the daily aggregate report of
// ingested media volume.
package summary

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/mediavault/internal/models"
)

// LogsDirName is the subdirectory under the storage root holding summaries.
const LogsDirName = "logs"

// DayCounter reports how many media files exist for one calendar day.
type DayCounter interface {
	CountDay(date string) (images, videos int, err error)
}

// Writer computes daily summaries from the partition tree and writes them as
// human-readable log files at {root}/logs/{YYYY-MM-DD}-log.txt. Re-running a
// day recomputes and overwrites; the summary is a derived view, never a
// source of truth.
type Writer struct {
	Root    string
	Counter DayCounter
}

// NewWriter creates a summary Writer over the given storage root.
func NewWriter(root string, counter DayCounter) *Writer {
	return &Writer{Root: root, Counter: counter}
}

// Run computes the summary for date (YYYY-MM-DD) and writes its log file.
// Safe to invoke more than once for the same date.
func (w *Writer) Run(date string) (models.DailySummary, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return models.DailySummary{}, fmt.Errorf("invalid summary date %q: %w", date, err)
	}

	images, videos, err := w.Counter.CountDay(date)
	if err != nil {
		return models.DailySummary{}, fmt.Errorf("counting media for %s: %w", date, err)
	}

	s := models.DailySummary{Date: date, ImageCount: images, VideoCount: videos}
	if err := w.write(s); err != nil {
		return models.DailySummary{}, err
	}

	slog.Info("Summary written", "date", date, "images", images, "videos", videos)
	return s, nil
}

// Read loads a previously written summary. Returns models.ErrNoSummary if no
// summary has been recorded for the date. The date is validated before it is
// joined into the log path; a non-date string must never name a file outside
// the logs directory.
func (w *Writer) Read(date string) (models.DailySummary, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return models.DailySummary{}, fmt.Errorf("invalid summary date %q: %w", date, err)
	}

	path := w.logPath(date)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return models.DailySummary{}, fmt.Errorf("%w: %s", models.ErrNoSummary, date)
	}
	if err != nil {
		return models.DailySummary{}, fmt.Errorf("opening summary %s: %w", path, err)
	}
	defer file.Close()

	s := models.DailySummary{Date: date}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "images:"):
			fmt.Sscanf(line, "images: %d", &s.ImageCount)
		case strings.HasPrefix(line, "videos:"):
			fmt.Sscanf(line, "videos: %d", &s.VideoCount)
		}
	}
	if err := scanner.Err(); err != nil {
		return models.DailySummary{}, fmt.Errorf("reading summary %s: %w", path, err)
	}
	return s, nil
}

func (w *Writer) logPath(date string) string {
	return filepath.Join(w.Root, LogsDirName, fmt.Sprintf("%s-log.txt", date))
}

func (w *Writer) write(s models.DailySummary) error {
	dir := filepath.Join(w.Root, LogsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &models.StorageError{Path: dir, Err: err}
	}

	final := w.logPath(s.Date)
	content := fmt.Sprintf("%s daily summary\nimages: %d\nvideos: %d\n",
		s.Date, s.ImageCount, s.VideoCount)

	// Write-then-rename so a rerun never leaves a half-written summary.
	tmp, err := os.CreateTemp(dir, s.Date+"-log.txt.tmp-*")
	if err != nil {
		return &models.StorageError{Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &models.StorageError{Path: final, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &models.StorageError{Path: final, Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return &models.StorageError{Path: final, Err: err}
	}
	return nil
}
