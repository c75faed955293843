package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fairpm/fair-go/internal/headers"
)

// ThemeStylesheet is the file holding a theme's headers.
const ThemeStylesheet = "style.css"

// ScanResult counts what a scan registered.
type ScanResult struct {
	Plugins int
	Themes  int
	Skipped int
}

// Scanner discovers installed packages carrying a DID header and registers
// them.
type Scanner struct {
	Registry *Registry
}

// NewScanner creates a scanner that fills reg.
func NewScanner(reg *Registry) *Scanner {
	return &Scanner{Registry: reg}
}

// Scan walks the plugins and themes directories. Missing directories are
// treated as empty.
func (s *Scanner) Scan() (*ScanResult, error) {
	res := &ScanResult{}
	plugins, err := pluginFiles(s.Registry.Dir(KindPlugin))
	if err != nil {
		return nil, err
	}
	for _, path := range plugins {
		if s.register(KindPlugin, path, headers.PluginID) {
			res.Plugins++
		} else {
			res.Skipped++
		}
	}

	themes, err := themeFiles(s.Registry.Dir(KindTheme))
	if err != nil {
		return nil, err
	}
	for _, path := range themes {
		if s.register(KindTheme, path, headers.ThemeID) {
			res.Themes++
		} else {
			res.Skipped++
		}
	}
	slog.Info("package scan complete", "plugins", res.Plugins, "themes", res.Themes, "skipped", res.Skipped)
	return res, nil
}

// Rescan rebuilds the registry from disk and swaps the result in at once.
// Uninstalled packages disappear and memoized metadata is dropped.
func (s *Scanner) Rescan() (*ScanResult, error) {
	fresh := New(s.Registry.pluginsDir, s.Registry.themesDir)
	res, err := NewScanner(fresh).Scan()
	if err != nil {
		return nil, err
	}
	s.Registry.replaceWith(fresh)
	return res, nil
}

func (s *Scanner) register(kind Kind, path, idHeader string) bool {
	h, err := headers.ReadFile(path, idHeader, headers.PackageID)
	if err != nil {
		slog.Warn("failed to read package headers", "path", path, "error", err)
		return false
	}
	id := h.Get(idHeader)
	if id == "" {
		id = h.Get(headers.PackageID)
	}
	if id == "" {
		return false
	}
	if _, err := s.Registry.Register(kind, id, path); err != nil {
		slog.Warn("ignoring package with invalid DID", "path", path, "did", id, "error", err)
		return false
	}
	return true
}

// pluginFiles lists loose *.php files in root and *.php files one directory
// down.
func pluginFiles(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		if !e.IsDir() {
			if isPHP(e.Name()) {
				out = append(out, path)
			}
			continue
		}
		sub, err := readDir(path)
		if err != nil {
			return nil, err
		}
		for _, se := range sub {
			if !se.IsDir() && isPHP(se.Name()) {
				out = append(out, filepath.Join(path, se.Name()))
			}
		}
	}
	return out, nil
}

// themeFiles lists <theme>/style.css for each directory in root.
func themeFiles(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name(), ThemeStylesheet)
		if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
			out = append(out, path)
		}
	}
	return out, nil
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	return entries, nil
}

func isPHP(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".php") && !strings.HasPrefix(name, ".")
}
