package did

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairpm/fair-go/internal/apperr"
)

// ServiceTypePackageRepo is the service type that points at a package's
// metadata document.
const ServiceTypePackageRepo = "FairPackageManagementRepo"

// SigningKeyType is the only verification method type accepted for package
// signing.
const SigningKeyType = "Multibase"

// signingKeyFragmentPrefix must prefix the fragment of every signing key id.
const signingKeyFragmentPrefix = "fair"

// ErrDocumentJSON is returned when a DID document cannot be decoded.
var ErrDocumentJSON = fmt.Errorf("%w: malformed DID document", apperr.ErrResolutionFailed)

// Document is a resolved DID Document. It is never modified after decoding.
type Document struct {
	ID                 string               `json:"id"`
	AlsoKnownAs        []string             `json:"alsoKnownAs,omitempty"`
	Service            []Service            `json:"service"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
}

// Service is a DID Document service entry.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// VerificationMethod is a DID Document verification method entry.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// SigningKey is a verification method that passed the signing key filter.
type SigningKey struct {
	ID                 string
	PublicKeyMultibase string
}

// DecodeDocument decodes a DID Document from JSON.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentJSON, err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrDocumentJSON)
	}
	return &doc, nil
}

// FindService returns the first service of the given type.
func (d *Document) FindService(serviceType string) (Service, bool) {
	for _, s := range d.Service {
		if s.Type == serviceType {
			return s, true
		}
	}
	return Service{}, false
}

// SigningKeys returns the verification methods usable for package signatures:
// Multibase type, a did:key id, and a fragment starting with "fair". An empty
// result means the package cannot be trusted.
func (d *Document) SigningKeys() []SigningKey {
	keys := make([]SigningKey, 0, len(d.VerificationMethod))
	for _, vm := range d.VerificationMethod {
		if !isSigningKey(vm) {
			continue
		}
		keys = append(keys, SigningKey{ID: vm.ID, PublicKeyMultibase: vm.PublicKeyMultibase})
	}
	return keys
}

func isSigningKey(vm VerificationMethod) bool {
	if vm.Type != SigningKeyType {
		return false
	}
	uri, fragment, ok := strings.Cut(vm.ID, "#")
	if !ok {
		return false
	}
	parsed, err := Parse(uri)
	if err != nil || parsed.Method() != MethodKey {
		return false
	}
	return strings.HasPrefix(fragment, signingKeyFragmentPrefix)
}
