// Package did parses Decentralized Identifiers, resolves them to DID Documents
// and caches the result.
package did

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fairpm/fair-go/internal/apperr"
)

// Method is a DID method name.
type Method string

const (
	MethodPLC Method = "plc"
	MethodWeb Method = "web"
	// MethodKey identifies did:key URIs. They appear as verification method ids
	// and parse fine, but there is no document to resolve.
	MethodKey Method = "key"
)

var supportedMethods = map[Method]bool{
	MethodPLC: true,
	MethodWeb: true,
	MethodKey: true,
}

// Parse failure reasons. All of them satisfy errors.Is(err, apperr.ErrInvalidDID).
var (
	ErrNotADID           = fmt.Errorf("%w: not a DID", apperr.ErrInvalidDID)
	ErrNotThreeParts     = fmt.Errorf("%w: expected did:<method>:<id>", apperr.ErrInvalidDID)
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported method", apperr.ErrInvalidDID)
)

// DID is a parsed identifier. The zero value is not valid; use Parse.
type DID struct {
	raw    string
	method Method
	id     string
}

// Parse splits s into exactly three colon-separated segments. The method
// specific id keeps any further colons, as did:web paths use them.
func Parse(s string) (DID, error) {
	if !strings.HasPrefix(s, "did:") {
		return DID{}, fmt.Errorf("%w: %q", ErrNotADID, s)
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return DID{}, fmt.Errorf("%w: %q", ErrNotThreeParts, s)
	}
	m := Method(parts[1])
	if !supportedMethods[m] {
		return DID{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, parts[1])
	}
	return DID{raw: s, method: m, id: parts[2]}, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) DID {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsValid reports whether s parses as a DID.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the identifier exactly as it was parsed.
func (d DID) String() string { return d.raw }

// Method returns the DID method.
func (d DID) Method() Method { return d.method }

// ID returns the method specific identifier.
func (d DID) ID() string { return d.id }

// IsZero reports whether d is the zero value.
func (d DID) IsZero() bool { return d.raw == "" }

// Hash returns the short hash of the DID used to suffix install directories
// and API slugs.
func (d DID) Hash() string { return Hash(d.raw) }

// Hash returns the first 6 hex characters of the SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:6]
}
