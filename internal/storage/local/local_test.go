package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fairpm/fair-go/internal/config"
	"github.com/fairpm/fair-go/internal/storage"
)

// newTestStorage creates a LocalStorage backed by a temporary directory.
func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	subDir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := New(&config.LocalStorageConfig{BasePath: subDir}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(subDir); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

// ---------------------------------------------------------------------------
// Upload / Download
// ---------------------------------------------------------------------------

func TestUpload(t *testing.T) {
	s := newTestStorage(t)
	data := []byte("zip bytes")

	result, err := s.Upload(context.Background(), storage.ArchiveKey("https://example.com/p.zip"), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if result.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", result.Size, len(data))
	}
	if len(result.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(result.Checksum))
	}

	entries, err := os.ReadDir(filepath.Join(s.basePath, "archives"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestUpload_Overwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "a.zip", strings.NewReader("first"), 5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload(ctx, "a.zip", strings.NewReader("second"), 6); err != nil {
		t.Fatal(err)
	}
	rc, err := s.Download(ctx, "a.zip")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}
}

func TestDownload(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	want := []byte("download me")
	if _, err := s.Upload(ctx, "dl/file.zip", bytes.NewReader(want), int64(len(want))); err != nil {
		t.Fatal("Upload:", err)
	}

	rc, err := s.Download(ctx, "dl/file.zip")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal("ReadAll:", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Download() = %q, want %q", got, want)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Download(context.Background(), "missing.zip")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	for _, p := range []string{"../outside.zip", "a/../../outside.zip", "/etc/passwd", ""} {
		if _, err := s.Upload(ctx, p, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Upload(%q) expected error", p)
		}
		if _, err := s.Exists(ctx, p); err == nil {
			t.Errorf("Exists(%q) expected error", p)
		}
	}
}

// ---------------------------------------------------------------------------
// Delete / Exists
// ---------------------------------------------------------------------------

func TestDelete_CleansUpEmptyParentDirs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Upload(ctx, "x/y/z.zip", strings.NewReader("data"), 4); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "x/y/z.zip"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "x")); !os.IsNotExist(err) {
		t.Error("empty parent directories were not removed")
	}
	if _, err := os.Stat(s.basePath); err != nil {
		t.Error("base path was removed")
	}
}

func TestDelete_NonExistentFile(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "nope.zip"); err != nil {
		t.Errorf("Delete() of missing file = %v, want nil", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "e.zip")
	if err != nil || ok {
		t.Fatalf("Exists() before upload = %v, %v", ok, err)
	}
	if _, err := s.Upload(ctx, "e.zip", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "e.zip")
	if err != nil || !ok {
		t.Errorf("Exists() after upload = %v, %v", ok, err)
	}
}

// ---------------------------------------------------------------------------
// GetMetadata
// ---------------------------------------------------------------------------

func TestGetMetadata_ChecksumMatchesUpload(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	content := "checksum consistency check"
	up, err := s.Upload(ctx, "cksum.zip", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatal("Upload:", err)
	}

	meta, err := s.GetMetadata(ctx, "cksum.zip")
	if err != nil {
		t.Fatal("GetMetadata:", err)
	}
	if meta.Checksum != up.Checksum {
		t.Errorf("GetMetadata checksum %q != Upload checksum %q", meta.Checksum, up.Checksum)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if meta.LastModified.IsZero() {
		t.Error("LastModified should not be zero")
	}
}

func TestGetMetadata_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetMetadata(context.Background(), "not-here.zip"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMetadata() error = %v, want ErrNotFound", err)
	}
}
