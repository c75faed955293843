// Package packages models FAIR metadata and release documents, fetches them
// from a package's repository endpoint, and selects releases and artifacts
// for the local environment.
package packages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fairpm/fair-go/internal/apperr"
)

// ContentType is the media type of a FAIR metadata document.
const ContentType = "application/json+fair"

// Package types carried in MetadataDocument.Type.
const (
	TypePlugin = "wp-plugin"
	TypeTheme  = "wp-theme"
)

var (
	ErrInvalidJSON     = fmt.Errorf("%w: could not decode document", apperr.ErrMetadataInvalid)
	ErrMissingField    = fmt.Errorf("%w: missing mandatory field", apperr.ErrMetadataInvalid)
	ErrMissingReleases = fmt.Errorf("%w: no releases found in the metadata document", apperr.ErrMetadataInvalid)
)

var (
	metadataMandatory = []string{"id", "type", "license", "authors", "security"}
	releaseMandatory  = []string{"version", "artifacts"}
)

// Author is a package author entry.
type Author struct {
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// SecurityContact is a security disclosure contact.
type SecurityContact struct {
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// MetadataDocument describes a package and all of its releases.
type MetadataDocument struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name,omitempty"`
	Slug        string            `json:"slug,omitempty"`
	License     string            `json:"license"`
	Description string            `json:"description,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Authors     []Author          `json:"authors"`
	Security    []SecurityContact `json:"security"`
	Sections    Sections          `json:"sections,omitempty"`
	Releases    []ReleaseDocument `json:"releases"`

	// Headers holds the HTTP response headers the document was served with.
	Headers http.Header `json:"-"`
}

// ReleaseDocument describes a single version of a package.
type ReleaseDocument struct {
	Version   string            `json:"version"`
	Artifacts Artifacts         `json:"artifacts"`
	Provides  map[string]string `json:"provides,omitempty"`
	Requires  map[string]string `json:"requires,omitempty"`
	Suggests  map[string]string `json:"suggests,omitempty"`
	Auth      json.RawMessage   `json:"auth,omitempty"`
}

// Artifacts groups a release's downloadable files by role.
type Artifacts struct {
	Package    []Artifact `json:"package,omitempty"`
	Icon       []Artifact `json:"icon,omitempty"`
	Banner     []Artifact `json:"banner,omitempty"`
	Screenshot []Artifact `json:"screenshot,omitempty"`
}

// Artifact is a single downloadable file.
type Artifact struct {
	URL         string `json:"url"`
	Lang        string `json:"lang,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Signature   string `json:"signature,omitempty"`
	ContentType string `json:"content-type,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

// ParseMetadata decodes and validates a metadata document. Every release is
// validated; the first invalid one fails the whole document.
func ParseMetadata(data []byte) (*MetadataDocument, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if err := requireFields(fields, metadataMandatory); err != nil {
		return nil, err
	}

	var rawReleases []json.RawMessage
	if r, ok := fields["releases"]; ok && !isNull(r) {
		if err := json.Unmarshal(r, &rawReleases); err != nil {
			return nil, fmt.Errorf("%w: releases: %v", ErrInvalidJSON, err)
		}
	}
	if len(rawReleases) == 0 {
		return nil, ErrMissingReleases
	}

	var doc MetadataDocument
	if err := decodeTyped(data, &doc); err != nil {
		return nil, err
	}

	doc.Releases = make([]ReleaseDocument, 0, len(rawReleases))
	for i, raw := range rawReleases {
		rel, err := ParseRelease(raw)
		if err != nil {
			return nil, fmt.Errorf("release %d: %w", i, err)
		}
		doc.Releases = append(doc.Releases, *rel)
	}
	return &doc, nil
}

// ParseRelease decodes and validates a release document.
func ParseRelease(data []byte) (*ReleaseDocument, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if err := requireFields(fields, releaseMandatory); err != nil {
		return nil, err
	}
	var rel ReleaseDocument
	if err := decodeTyped(data, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// LastUpdated returns the document's Last-Modified header, if any.
func (m *MetadataDocument) LastUpdated() (time.Time, bool) {
	if m.Headers == nil {
		return time.Time{}, false
	}
	t, err := http.ParseTime(m.Headers.Get("Last-Modified"))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidJSON)
	}
	return fields, nil
}

// requireFields treats a JSON null the same as an absent key.
func requireFields(fields map[string]json.RawMessage, names []string) error {
	for _, name := range names {
		v, ok := fields[name]
		if !ok || isNull(v) {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}

func decodeTyped(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %s has wrong type", apperr.ErrMetadataInvalid, typeErr.Field)
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
