package packages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/telemetry"
)

// DefaultMetadataTimeout bounds a metadata document request.
const DefaultMetadataTimeout = 7 * time.Second

// maxMetadataSize bounds metadata responses.
const maxMetadataSize = 8 << 20

// AcceptHeader prefers the FAIR media type over plain JSON.
var AcceptHeader = fmt.Sprintf("%s;q=1.0, application/json;q=0.8", ContentType)

// DocumentSource returns the DID Document for a DID string. *did.Cache
// satisfies it.
type DocumentSource interface {
	Get(ctx context.Context, id string) (*did.Document, error)
}

// Fetcher retrieves metadata documents.
type Fetcher struct {
	Documents  DocumentSource
	HTTPClient *http.Client
}

// NewFetcher creates a fetcher. A non-positive timeout uses
// DefaultMetadataTimeout.
func NewFetcher(docs DocumentSource, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &Fetcher{
		Documents:  docs,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FetchMetadata GETs and validates the metadata document at metadataURL.
// Response headers are kept on the document.
func (f *Fetcher) FetchMetadata(ctx context.Context, metadataURL string) (*MetadataDocument, error) {
	start := time.Now()
	doc, err := f.fetchMetadata(ctx, metadataURL)
	telemetry.MetadataFetchDuration.WithLabelValues(apperr.Kind(err)).Observe(time.Since(start).Seconds())
	return doc, err
}

func (f *Fetcher) fetchMetadata(ctx context.Context, metadataURL string) (*MetadataDocument, error) {
	if err := ValidateEndpointURL(metadataURL); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMetadataInvalid, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", AcceptHeader)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.NewTransportError(metadataURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.NewTransportError(metadataURL, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, apperr.NewTransportError(metadataURL, 0, err)
	}

	doc, err := ParseMetadata(body)
	if err != nil {
		return nil, err
	}
	doc.Headers = resp.Header.Clone()
	return doc, nil
}

// FetchPackageMetadata resolves id and fetches the metadata document named by
// its package repository service.
func (f *Fetcher) FetchPackageMetadata(ctx context.Context, id string) (*MetadataDocument, error) {
	doc, err := f.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.FetchForDocument(ctx, doc)
}

// FetchForDocument fetches the metadata document for an already resolved DID
// Document.
func (f *Fetcher) FetchForDocument(ctx context.Context, doc *did.Document) (*MetadataDocument, error) {
	svc, ok := doc.FindService(did.ServiceTypePackageRepo)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNoService, doc.ID)
	}
	slog.Debug("fetching package metadata", "did", doc.ID, "endpoint", svc.ServiceEndpoint)
	return f.FetchMetadata(ctx, svc.ServiceEndpoint)
}

// FetchLatestRelease returns the newest release of the package id.
func (f *Fetcher) FetchLatestRelease(ctx context.Context, id string) (*ReleaseDocument, error) {
	meta, err := f.FetchPackageMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	rel := PickRelease(meta.Releases, "")
	if rel == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNoReleases, id)
	}
	return rel, nil
}

// ValidateEndpointURL checks that u is an absolute http(s) URL.
func ValidateEndpointURL(u string) error {
	if u == "" {
		return fmt.Errorf("endpoint URL cannot be empty")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint URL must have a host")
	}
	return nil
}
