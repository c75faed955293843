package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/packages"
)

// Kind is the kind of an installed package.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
)

// ParseKind parses "plugin" or "theme". The plural forms are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plugin", "plugins":
		return KindPlugin, nil
	case "theme", "themes":
		return KindTheme, nil
	}
	return "", fmt.Errorf("unknown package kind %q (must be plugin or theme)", s)
}

// PackageType returns the metadata document type for the kind.
func (k Kind) PackageType() string {
	if k == KindTheme {
		return packages.TypeTheme
	}
	return packages.TypePlugin
}

// KindForType maps a metadata document type to a Kind.
func KindForType(t string) (Kind, bool) {
	switch t {
	case packages.TypePlugin:
		return KindPlugin, true
	case packages.TypeTheme:
		return KindTheme, true
	}
	return "", false
}

// MetadataSource fetches a package's metadata document by DID.
type MetadataSource interface {
	FetchPackageMetadata(ctx context.Context, id string) (*packages.MetadataDocument, error)
}

// Package is an installed package that carries a DID header.
type Package struct {
	DID  string
	Kind Kind
	// Filepath is the absolute path of the plugin main file or the theme's
	// style.css.
	Filepath string
	// LocalVersion is the Version header of Filepath, if any.
	LocalVersion string

	root string

	mu       sync.Mutex
	metadata *packages.MetadataDocument
	release  *packages.ReleaseDocument
}

// DIDHash returns the short hash of the package DID.
func (p *Package) DIDHash() string { return did.Hash(p.DID) }

// Slug returns the plugin directory name or the theme stylesheet. A plugin
// that is a single loose file uses the file name without extension.
func (p *Package) Slug() string {
	if p.Kind == KindTheme {
		return filepath.Base(filepath.Dir(p.Filepath))
	}
	rel := p.RelativePath()
	if dir := filepath.Dir(rel); dir != "." {
		return filepath.ToSlash(dir)
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// RelativePath returns the key used in update results: the plugin file
// relative to the plugins directory ("my-plugin/my-plugin.php"), or the
// theme directory name.
func (p *Package) RelativePath() string {
	if p.Kind == KindTheme {
		return filepath.Base(filepath.Dir(p.Filepath))
	}
	rel, err := filepath.Rel(p.root, p.Filepath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(p.Filepath)
	}
	return filepath.ToSlash(rel)
}

// Metadata returns the package's metadata document, fetching it on first
// use. Failures are not remembered, so the next call fetches again.
func (p *Package) Metadata(ctx context.Context, src MetadataSource) (*packages.MetadataDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadataLocked(ctx, src)
}

func (p *Package) metadataLocked(ctx context.Context, src MetadataSource) (*packages.MetadataDocument, error) {
	if p.metadata != nil {
		return p.metadata, nil
	}
	meta, err := src.FetchPackageMetadata(ctx, p.DID)
	if err != nil {
		return nil, err
	}
	p.metadata = meta
	return meta, nil
}

// Release returns the latest release, memoized like Metadata.
func (p *Package) Release(ctx context.Context, src MetadataSource) (*packages.ReleaseDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release != nil {
		return p.release, nil
	}
	meta, err := p.metadataLocked(ctx, src)
	if err != nil {
		return nil, err
	}
	rel := packages.PickRelease(meta.Releases, "")
	if rel == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNoReleases, p.DID)
	}
	p.release = rel
	return rel, nil
}

// Forget drops the memoized metadata and release.
func (p *Package) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata = nil
	p.release = nil
}
