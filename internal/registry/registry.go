// Package registry tracks the installed plugins and themes that declare a
// DID, and finds them by DID, slug, or file.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/headers"
)

// Registry holds registered packages. It is safe for concurrent use.
type Registry struct {
	pluginsDir string
	themesDir  string

	mu      sync.RWMutex
	plugins map[string]*Package
	themes  map[string]*Package
}

// New creates an empty registry for the given content directories.
func New(pluginsDir, themesDir string) *Registry {
	return &Registry{
		pluginsDir: pluginsDir,
		themesDir:  themesDir,
		plugins:    make(map[string]*Package),
		themes:     make(map[string]*Package),
	}
}

// Dir returns the content directory for kind.
func (r *Registry) Dir(kind Kind) string {
	if kind == KindTheme {
		return r.themesDir
	}
	return r.pluginsDir
}

func (r *Registry) set(kind Kind) map[string]*Package {
	if kind == KindTheme {
		return r.themes
	}
	return r.plugins
}

// Register adds or replaces the package for id. The local version is read
// from the Version header of path.
func (r *Registry) Register(kind Kind, id, path string) (*Package, error) {
	if _, err := did.Parse(id); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve package path: %w", err)
	}
	root, err := filepath.Abs(r.Dir(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content directory: %w", err)
	}

	pkg := &Package{DID: id, Kind: kind, Filepath: abs, root: root}
	if h, err := headers.ReadFile(abs, headers.Version); err == nil {
		pkg.LocalVersion = h.Get(headers.Version)
	} else {
		slog.Debug("could not read package version", "did", id, "path", abs, "error", err)
	}

	r.mu.Lock()
	r.set(kind)[id] = pkg
	r.mu.Unlock()
	return pkg, nil
}

// Get returns the package registered for id.
func (r *Registry) Get(kind Kind, id string) (*Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.set(kind)[id]
	return p, ok
}

// GetBySlug returns the first package, in DID order, whose slug matches.
func (r *Registry) GetBySlug(kind Kind, slug string) (*Package, bool) {
	for _, p := range r.All(kind) {
		if p.Slug() == slug {
			return p, true
		}
	}
	return nil, false
}

// GetByFile returns the plugin whose main file is relativeFile, relative to
// the plugins directory.
func (r *Registry) GetByFile(relativeFile string) (*Package, bool) {
	want, err := filepath.Abs(filepath.Join(r.pluginsDir, filepath.FromSlash(relativeFile)))
	if err != nil {
		return nil, false
	}
	for _, p := range r.All(KindPlugin) {
		if p.Filepath == want {
			return p, true
		}
	}
	return nil, false
}

// All returns the packages of kind sorted by DID.
func (r *Registry) All(kind Kind) []*Package {
	r.mu.RLock()
	out := make([]*Package, 0, len(r.set(kind)))
	for _, p := range r.set(kind) {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DID < out[j].DID })
	return out
}

// Len returns the number of packages of kind.
func (r *Registry) Len(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set(kind))
}

// Reset removes every package.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]*Package)
	r.themes = make(map[string]*Package)
}

// replaceWith swaps in the packages of other, which must not be used
// afterwards.
func (r *Registry) replaceWith(other *Registry) {
	other.mu.RLock()
	plugins, themes := other.plugins, other.themes
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = plugins
	r.themes = themes
}

// FindByAPISlug returns the package whose metadata slug equals slug, with or
// without the "-<didhash>" suffix. Packages whose metadata cannot be fetched
// are skipped.
func (r *Registry) FindByAPISlug(ctx context.Context, kind Kind, slug string, src MetadataSource) (*Package, bool) {
	if slug == "" {
		return nil, false
	}
	for _, p := range r.All(kind) {
		meta, err := p.Metadata(ctx, src)
		if err != nil {
			slog.Debug("skipping package without metadata", "did", p.DID, "error", err)
			continue
		}
		if meta.Slug == "" {
			continue
		}
		if slug == meta.Slug || slug == meta.Slug+"-"+p.DIDHash() {
			return p, true
		}
	}
	return nil, false
}
