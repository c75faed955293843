// Package apperr defines the error taxonomy shared by the resolver, fetcher,
// installer and update checker. Every failure surfaced by those components
// wraps exactly one of the sentinels below so callers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// Identity and resolution
	ErrInvalidDID       = errors.New("invalid DID")
	ErrResolutionFailed = errors.New("DID resolution failed")
	ErrNoService        = errors.New("DID document has no package repository service")
	ErrNoSigningKeys    = errors.New("DID document has no valid signing keys")

	// Metadata
	ErrMetadataInvalid = errors.New("invalid package metadata")
	ErrNoReleases      = errors.New("no matching release")

	// Install
	ErrIncompatibleArchive = errors.New("incompatible archive")
	ErrIncompatibleVersion = errors.New("incompatible environment version")
	ErrMissingExtension    = errors.New("required extension is not loaded")
	ErrSignatureInvalid    = errors.New("signature verification failed")
	ErrDIDMismatch         = errors.New("package DID does not match the requested DID")
	ErrDestinationExists   = errors.New("destination already exists")

	// Network
	ErrTransport = errors.New("transport error")
)

// kinds maps each sentinel to the stable code used in metrics labels, update
// records and API responses. Order matters: the first match wins.
var kinds = []struct {
	err  error
	code string
}{
	{ErrInvalidDID, "invalid_did"},
	{ErrNoService, "no_service"},
	{ErrNoSigningKeys, "no_signing_keys"},
	{ErrMetadataInvalid, "metadata_invalid"},
	{ErrNoReleases, "no_releases"},
	{ErrIncompatibleArchive, "incompatible_archive"},
	{ErrIncompatibleVersion, "incompatible_version"},
	{ErrMissingExtension, "missing_extension"},
	{ErrSignatureInvalid, "signature_invalid"},
	{ErrDIDMismatch, "did_mismatch"},
	{ErrDestinationExists, "destination_exists"},
	{ErrTransport, "transport_error"},
	{ErrResolutionFailed, "resolution_failed"},
}

// Kind returns the stable code for err, "ok" for nil and "unknown" when err
// wraps none of the package sentinels.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "unknown"
}

// TransportError is returned when a remote endpoint answers with an
// unexpected status code or cannot be reached at all.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d from %s", ErrTransport, e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrTransport, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrTransport, e.URL)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrTransport so callers do not need errors.As for the
// common case.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a transport error for url.
func NewTransportError(url string, statusCode int, err error) *TransportError {
	return &TransportError{URL: url, StatusCode: statusCode, Err: err}
}
