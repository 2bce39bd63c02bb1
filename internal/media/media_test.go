package media

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/user/mediavault/internal/models"
)

func testRecord(id string, category models.Category) models.MediaRecord {
	capturedAt := time.Date(2024, 3, 5, 14, 30, 45, 0, time.Local)
	return models.MediaRecord{ID: id, Category: category, CapturedAt: capturedAt}
}

func TestPersist_PartitionPath(t *testing.T) {
	p := NewPersister(t.TempDir())

	path, err := p.Persist(testRecord("abc123", models.CategoryImages), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		t.Fatalf("Rel failed: %v", err)
	}
	want := regexp.MustCompile(`^2024-03-05/images/2024-03-05_\d{6}_abc123\.jpg$`)
	if !want.MatchString(filepath.ToSlash(rel)) {
		t.Errorf("storage path %q does not match partition layout", rel)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted file failed: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("persisted content mismatch: %q", data)
	}
}

func TestPersist_VideoExtension(t *testing.T) {
	p := NewPersister(t.TempDir())

	path, err := p.Persist(testRecord("vid1", models.CategoryVideos), []byte("mp4-bytes"))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("expected .mp4 extension, got %q", filepath.Ext(path))
	}
	if filepath.Base(filepath.Dir(path)) != "videos" {
		t.Errorf("expected videos partition, got %q", filepath.Dir(path))
	}
}

func TestPersist_SameSecondDistinctIds(t *testing.T) {
	p := NewPersister(t.TempDir())

	path1, err := p.Persist(testRecord("id-one", models.CategoryImages), []byte("a"))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	path2, err := p.Persist(testRecord("id-two", models.CategoryImages), []byte("b"))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if path1 == path2 {
		t.Errorf("two ids in the same second produced the same path: %q", path1)
	}
}

func TestPersist_UnknownCategory(t *testing.T) {
	p := NewPersister(t.TempDir())
	if _, err := p.Persist(testRecord("x", models.Category("audio")), []byte("a")); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestPersist_RejectsPathSeparatorInID(t *testing.T) {
	p := NewPersister(t.TempDir())

	for _, id := range []string{"../../evil", `..\..\evil`, "a/b"} {
		_, err := p.Persist(testRecord(id, models.CategoryImages), []byte("x"))
		if !errors.Is(err, models.ErrInvalidMessageID) {
			t.Errorf("id %q: expected ErrInvalidMessageID, got %v", id, err)
		}
	}

	// Nothing may have landed outside the storage root.
	entries, err := os.ReadDir(filepath.Dir(p.Root))
	if err != nil {
		t.Fatalf("listing root parent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected entries next to storage root: %v", entries)
	}
}

func TestPersist_StorageErrorSurfaced(t *testing.T) {
	// A file where the partition directory should be forces MkdirAll to fail.
	root := t.TempDir()
	blocker := filepath.Join(root, "2024-03-05")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	p := NewPersister(root)
	_, err := p.Persist(testRecord("x", models.CategoryImages), []byte("a"))
	if err == nil {
		t.Fatal("expected storage error")
	}
	var storageErr *models.StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("expected *models.StorageError, got %T: %v", err, err)
	}
}

func TestCountDay(t *testing.T) {
	p := NewPersister(t.TempDir())

	for _, id := range []string{"i1", "i2", "i3"} {
		if _, err := p.Persist(testRecord(id, models.CategoryImages), []byte("img")); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}
	for _, id := range []string{"v1", "v2"} {
		if _, err := p.Persist(testRecord(id, models.CategoryVideos), []byte("vid")); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}

	images, videos, err := p.CountDay("2024-03-05")
	if err != nil {
		t.Fatalf("CountDay failed: %v", err)
	}
	if images != 3 || videos != 2 {
		t.Errorf("CountDay = (%d, %d), want (3, 2)", images, videos)
	}
}

func TestCountDay_MissingPartitionIsZero(t *testing.T) {
	p := NewPersister(t.TempDir())
	images, videos, err := p.CountDay("2031-01-01")
	if err != nil {
		t.Fatalf("CountDay failed: %v", err)
	}
	if images != 0 || videos != 0 {
		t.Errorf("CountDay on empty day = (%d, %d), want (0, 0)", images, videos)
	}
}

func TestCountDay_SkipsLeftoverTempFiles(t *testing.T) {
	p := NewPersister(t.TempDir())
	if _, err := p.Persist(testRecord("i1", models.CategoryImages), []byte("img")); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	dir := filepath.Join(p.Root, "2024-03-05", "images")
	stray := filepath.Join(dir, "2024-03-05_143045_crashed.jpg.tmp-12345")
	if err := os.WriteFile(stray, []byte("partial"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	images, _, err := p.CountDay("2024-03-05")
	if err != nil {
		t.Fatalf("CountDay failed: %v", err)
	}
	if images != 1 {
		t.Errorf("temp file counted: images = %d, want 1", images)
	}
}
