// Package archive downloads, unpacks and moves package archives. HTTPInstaller
// is the default archive installer used by the install flow: artifacts are
// fetched over HTTP into a temp file, optionally mirrored into a storage
// backend, unpacked from zip with path checks, and renamed into place.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/storage"
)

const (
	// MaxArchiveSize is the default limit for a downloaded archive (100MB).
	MaxArchiveSize = 100 * 1024 * 1024

	// DefaultDownloadTimeout bounds a single artifact download.
	DefaultDownloadTimeout = 5 * time.Minute
)

var (
	ErrArchiveTooLarge = fmt.Errorf("%w: archive exceeds maximum size", apperr.ErrIncompatibleArchive)
	ErrEmptyArchive    = fmt.Errorf("%w: archive is empty", apperr.ErrIncompatibleArchive)
	ErrUnsafePath      = fmt.Errorf("%w: unsafe path in archive", apperr.ErrIncompatibleArchive)
)

// HTTPInstaller downloads archives over HTTP. Store is optional; when set,
// downloads are served from and written back to it.
type HTTPInstaller struct {
	Client  *http.Client
	Store   storage.Storage
	MaxSize int64

	// TempDir is where downloads and unpacked trees are staged. Empty means
	// os.TempDir().
	TempDir string
}

// NewHTTPInstaller creates an installer with the given download timeout.
func NewHTTPInstaller(store storage.Storage, timeout time.Duration, maxSize int64) *HTTPInstaller {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if maxSize <= 0 {
		maxSize = MaxArchiveSize
	}
	return &HTTPInstaller{
		Client:  &http.Client{Timeout: timeout},
		Store:   store,
		MaxSize: maxSize,
	}
}

// Download fetches url into a temp file and returns its path.
func (h *HTTPInstaller) Download(ctx context.Context, url string) (string, error) {
	key := storage.ArchiveKey(url)
	if h.Store != nil {
		path, err := h.fromStore(ctx, key)
		if err == nil {
			slog.Debug("archive served from storage", "url", url, "key", key)
			return path, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("archive storage lookup failed", "key", key, "error", err)
		}
	}

	path, err := h.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	if h.Store != nil {
		if err := h.toStore(ctx, key, path); err != nil {
			slog.Warn("failed to cache archive", "key", key, "error", err)
		}
	}
	return path, nil
}

func (h *HTTPInstaller) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return "", apperr.NewTransportError(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.NewTransportError(url, resp.StatusCode, nil)
	}
	if resp.ContentLength > h.maxSize() {
		return "", ErrArchiveTooLarge
	}

	path, err := h.writeTemp(resp.Body)
	if err != nil {
		if errors.Is(err, ErrArchiveTooLarge) {
			return "", err
		}
		return "", apperr.NewTransportError(url, 0, err)
	}
	return path, nil
}

func (h *HTTPInstaller) fromStore(ctx context.Context, key string) (string, error) {
	rc, err := h.Store.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return h.writeTemp(rc)
}

func (h *HTTPInstaller) toStore(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = h.Store.Upload(ctx, key, f, info.Size())
	return err
}

// writeTemp copies r into a new temp file, enforcing the size limit.
func (h *HTTPInstaller) writeTemp(r io.Reader) (string, error) {
	f, err := os.CreateTemp(h.TempDir, "fair-download-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, h.maxSize()+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > h.maxSize() {
		err = ErrArchiveTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Unpack extracts the zip at archivePath into a new temp directory. If the
// archive holds one top-level directory, that directory is returned;
// otherwise the extraction root is. The second value is the extraction root,
// which the caller cleans up.
func (h *HTTPInstaller) Unpack(ctx context.Context, archivePath string) (string, string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid zip format: %v", apperr.ErrIncompatibleArchive, err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return "", "", ErrEmptyArchive
	}

	root, err := os.MkdirTemp(h.TempDir, "fair-unpack-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create unpack dir: %w", err)
	}

	var total uint64
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(root)
			return "", "", err
		}
		if err := validatePath(f.Name); err != nil {
			os.RemoveAll(root)
			return "", "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			os.RemoveAll(root)
			return "", "", fmt.Errorf("%w: symlinks not allowed: %s", ErrUnsafePath, f.Name)
		}
		total += f.UncompressedSize64
		if total > uint64(h.maxSize()) {
			os.RemoveAll(root)
			return "", "", ErrArchiveTooLarge
		}
		if err := extractFile(root, f); err != nil {
			os.RemoveAll(root)
			return "", "", err
		}
	}

	return singleTopDir(root), root, nil
}

func extractFile(root string, f *zip.File) error {
	target := filepath.Join(root, filepath.FromSlash(f.Name))
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrIncompatibleArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// singleTopDir returns root's only entry when that entry is a directory.
func singleTopDir(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return root
	}
	return filepath.Join(root, entries[0].Name())
}

// validatePath checks for path traversal attacks
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Windows-style absolute paths (C:\...) can appear in archives built on
	// Windows hosts.
	if len(path) >= 2 && path[1] == ':' {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
		if part == ".git" {
			return fmt.Errorf("git directories not allowed in archives")
		}
	}
	return nil
}

// renameDir is os.Rename, replaced in tests to force the copy path.
var renameDir = os.Rename

// Move renames src to dest, copying across filesystems when rename fails.
// dest is claimed with a single mkdir, so of two concurrent moves to the
// same dest exactly one wins. An existing dest is never touched.
func (h *HTTPInstaller) Move(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create destination parent: %w", err)
	}
	if err := os.Mkdir(dest, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", apperr.ErrDestinationExists, dest)
		}
		return fmt.Errorf("failed to create destination: %w", err)
	}

	// dest is now an empty directory owned by this call, which rename
	// replaces.
	if err := renameDir(src, dest); err == nil {
		return nil
	}
	if err := copyTree(src, dest); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("failed to copy into destination: %w", err)
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// Cleanup removes every non-empty path. Errors are logged.
func (h *HTTPInstaller) Cleanup(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("failed to remove temp path", "path", p, "error", err)
		}
	}
}

func (h *HTTPInstaller) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTPInstaller) maxSize() int64 {
	if h.MaxSize > 0 {
		return h.MaxSize
	}
	return MaxArchiveSize
}
