package updates

import (
	"strings"
	"time"

	"github.com/fairpm/fair-go/internal/packages"
	"github.com/fairpm/fair-go/internal/registry"
)

// Payload is the update data shown to the host for one package: enough to
// render "view details" and to start an update.
type Payload struct {
	DID         string `json:"did"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	SlugDIDHash string `json:"slug_didhash"`
	Type        string `json:"type"`
	// Plugin or Theme holds the relative install path, set per kind.
	Plugin string `json:"plugin,omitempty"`
	Theme  string `json:"theme,omitempty"`

	Authors     []packages.Author `json:"authors,omitempty"`
	Version     string            `json:"version"`
	NewVersion  string            `json:"new_version"`
	Requires    map[string]string `json:"requires,omitempty"`
	RequiresWP  string            `json:"requires_wp,omitempty"`
	RequiresPHP string            `json:"requires_php,omitempty"`
	Package     string            `json:"package"`
	Signature   string            `json:"signature,omitempty"`

	Icons       packages.ImageVariant `json:"icons"`
	Banners     packages.ImageVariant `json:"banners"`
	Sections    packages.Sections     `json:"sections,omitempty"`
	LastUpdated *time.Time            `json:"last_updated,omitempty"`
}

// BuildPayload assembles the payload for pkg from its metadata and the
// selected release. The package artifact is chosen with scorer.
func BuildPayload(pkg *registry.Package, meta *packages.MetadataDocument, rel *packages.ReleaseDocument, scorer packages.ArtifactScorer) *Payload {
	slug := meta.Slug
	if slug == "" {
		slug = pkg.Slug()
	}
	name := meta.Name
	if name == "" {
		name = slug
	}

	p := &Payload{
		DID:         pkg.DID,
		Name:        name,
		Slug:        slug,
		SlugDIDHash: slug + "-" + pkg.DIDHash(),
		Type:        meta.Type,
		Authors:     meta.Authors,
		Version:     rel.Version,
		NewVersion:  rel.Version,
		Requires:    rel.Requires,
		RequiresWP:  minimumVersion(rel.Requires[packages.RequirementWP]),
		RequiresPHP: minimumVersion(rel.Requires[packages.RequirementPHP]),
		Icons:       packages.PickIcons(rel.Artifacts.Icon),
		Banners:     packages.PickBanners(rel.Artifacts.Banner),
		Sections:    meta.Sections.Ordered(),
	}
	if a := packages.PickArtifact(rel.Artifacts.Package, scorer); a != nil {
		p.Package = a.URL
		p.Signature = a.Signature
	}
	if t, ok := meta.LastUpdated(); ok {
		t = t.UTC()
		p.LastUpdated = &t
	}
	return p
}

// forTransient returns a copy of p as the host expects it in update
// results: the slug carries the DID hash and the install path is set.
func (p *Payload) forTransient(pkg *registry.Package) *Payload {
	cp := *p
	cp.Slug = p.SlugDIDHash
	cp.Plugin, cp.Theme = "", ""
	if pkg.Kind == registry.KindTheme {
		cp.Theme = pkg.RelativePath()
	} else {
		cp.Plugin = pkg.RelativePath()
	}
	return &cp
}

// minimumVersion strips the ">=" of a minimum-version constraint.
func minimumVersion(constraint string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(constraint), ">="))
}
