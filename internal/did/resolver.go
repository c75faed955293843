package did

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/telemetry"
)

// DefaultPLCDirectory is the public PLC directory.
const DefaultPLCDirectory = "https://plc.directory"

// maxDocumentSize bounds DID Document responses.
const maxDocumentSize = 1 << 20

// Resolver turns a DID into its DID Document.
type Resolver interface {
	Resolve(ctx context.Context, id DID) (*Document, error)
}

// PLCResolver resolves did:plc identifiers against a PLC directory.
type PLCResolver struct {
	DirectoryURL string
	HTTPClient   *http.Client
}

// NewPLCResolver creates a resolver for the directory at directoryURL. An
// empty directoryURL uses the public directory.
func NewPLCResolver(directoryURL string, timeout time.Duration) *PLCResolver {
	if directoryURL == "" {
		directoryURL = DefaultPLCDirectory
	}
	return &PLCResolver{
		DirectoryURL: strings.TrimRight(directoryURL, "/"),
		HTTPClient:   &http.Client{Timeout: timeout},
	}
}

// Resolve fetches <directory>/<did>.
func (r *PLCResolver) Resolve(ctx context.Context, id DID) (*Document, error) {
	if id.Method() != MethodPLC {
		return nil, fmt.Errorf("%w: plc resolver cannot resolve %q", ErrUnsupportedMethod, id.Method())
	}
	return fetchDocument(ctx, r.HTTPClient, r.DirectoryURL+"/"+id.String())
}

// WebResolver resolves did:web identifiers by fetching did.json from the
// host named in the identifier.
type WebResolver struct {
	HTTPClient *http.Client
	// Scheme is "https" unless overridden for tests.
	Scheme string
}

// NewWebResolver creates a did:web resolver.
func NewWebResolver(timeout time.Duration) *WebResolver {
	return &WebResolver{
		HTTPClient: &http.Client{Timeout: timeout},
		Scheme:     "https",
	}
}

// Resolve fetches the document for id.
func (r *WebResolver) Resolve(ctx context.Context, id DID) (*Document, error) {
	if id.Method() != MethodWeb {
		return nil, fmt.Errorf("%w: web resolver cannot resolve %q", ErrUnsupportedMethod, id.Method())
	}
	docURL, err := WebDocumentURL(id, r.Scheme)
	if err != nil {
		return nil, err
	}
	return fetchDocument(ctx, r.HTTPClient, docURL)
}

// WebDocumentURL maps a did:web identifier to its document URL.
//
//	did:web:example.com           -> https://example.com/.well-known/did.json
//	did:web:example.com:u:alice   -> https://example.com/u/alice/did.json
//	did:web:localhost%3A8443      -> https://localhost:8443/.well-known/did.json
func WebDocumentURL(id DID, scheme string) (string, error) {
	if scheme == "" {
		scheme = "https"
	}
	segments := strings.Split(id.ID(), ":")
	host, err := url.PathUnescape(segments[0])
	if err != nil || host == "" || strings.ContainsAny(host, "/?#@") {
		return "", fmt.Errorf("%w: bad did:web host %q", apperr.ErrInvalidDID, segments[0])
	}

	path := "/.well-known"
	if len(segments) > 1 {
		parts := make([]string, 0, len(segments)-1)
		for _, seg := range segments[1:] {
			p, err := url.PathUnescape(seg)
			if err != nil || p == "" || p == "." || p == ".." || strings.Contains(p, "/") {
				return "", fmt.Errorf("%w: bad did:web path segment %q", apperr.ErrInvalidDID, seg)
			}
			parts = append(parts, url.PathEscape(p))
		}
		path = "/" + strings.Join(parts, "/")
	}
	return scheme + "://" + host + path + "/did.json", nil
}

// MethodResolver dispatches to a resolver per DID method.
type MethodResolver struct {
	resolvers map[Method]Resolver
}

// NewMethodResolver creates a dispatcher with the PLC and web resolvers.
func NewMethodResolver(plc, web Resolver) *MethodResolver {
	return &MethodResolver{resolvers: map[Method]Resolver{
		MethodPLC: plc,
		MethodWeb: web,
	}}
}

// Resolve resolves id with the resolver registered for its method.
func (m *MethodResolver) Resolve(ctx context.Context, id DID) (*Document, error) {
	r, ok := m.resolvers[id.Method()]
	if !ok || r == nil {
		telemetry.DIDResolutionsTotal.WithLabelValues(string(id.Method()), "unsupported").Inc()
		return nil, fmt.Errorf("%w: cannot resolve did:%s", ErrUnsupportedMethod, id.Method())
	}
	doc, err := r.Resolve(ctx, id)
	if err != nil {
		telemetry.DIDResolutionsTotal.WithLabelValues(string(id.Method()), apperr.Kind(err)).Inc()
		return nil, err
	}
	if doc.ID != id.String() {
		telemetry.DIDResolutionsTotal.WithLabelValues(string(id.Method()), "id_mismatch").Inc()
		return nil, fmt.Errorf("%w: document id %q does not match %q", apperr.ErrResolutionFailed, doc.ID, id)
	}
	telemetry.DIDResolutionsTotal.WithLabelValues(string(id.Method()), "ok").Inc()
	return doc, nil
}

func fetchDocument(ctx context.Context, client *http.Client, docURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DID document request: %w", err)
	}
	req.Header.Set("Accept", "application/did+json, application/json;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrResolutionFailed, apperr.NewTransportError(docURL, 0, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", apperr.ErrResolutionFailed, apperr.NewTransportError(docURL, resp.StatusCode, nil))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrResolutionFailed, apperr.NewTransportError(docURL, 0, err))
	}
	return DecodeDocument(body)
}
