package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/telemetry"
)

// Policy controls what happens when no usable key is available.
type Policy struct {
	// RequireKeys makes verification fail when no trusted key decodes.
	// When false the verification is skipped and reported as such.
	RequireKeys bool
}

// Result describes a verification outcome.
type Result struct {
	// KeyID is the id of the verification method whose key validated the
	// signature.
	KeyID   string
	Skipped bool
}

type trustedKey struct {
	id  string
	pub ed25519.PublicKey
}

// Verifier checks detached signatures against a fixed set of keys.
type Verifier struct {
	keys   []trustedKey
	policy Policy
}

// NewVerifier decodes every signing key. Keys that fail to decode are logged
// and left out; they never make a signature valid.
func NewVerifier(keys []did.SigningKey, policy Policy) *Verifier {
	v := &Verifier{policy: policy}
	for _, k := range keys {
		pub, err := DecodeSigningKey(k.PublicKeyMultibase)
		if err != nil {
			slog.Warn("ignoring undecodable signing key", "key_id", k.ID, "error", err)
			continue
		}
		v.keys = append(v.keys, trustedKey{id: k.ID, pub: pub})
	}
	return v
}

// TrustedKeys returns the number of usable keys.
func (v *Verifier) TrustedKeys() int { return len(v.keys) }

// DecodeSignature decodes a base64url signature. Padding is tolerated.
func DecodeSignature(signature string) ([]byte, error) {
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(signature, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not base64url: %v", apperr.ErrSignatureInvalid, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: signature is %d bytes, want %d", apperr.ErrSignatureInvalid, len(sig), ed25519.SignatureSize)
	}
	return sig, nil
}

// Verify checks signature over data. Any trusted key validating the
// signature is a success.
func (v *Verifier) Verify(data []byte, signature string) (*Result, error) {
	if len(v.keys) == 0 {
		if v.policy.RequireKeys {
			telemetry.SignatureVerificationsTotal.WithLabelValues("no_keys").Inc()
			return nil, fmt.Errorf("%w: no trusted signing keys", apperr.ErrSignatureInvalid)
		}
		telemetry.SignatureVerificationsTotal.WithLabelValues("skipped").Inc()
		return &Result{Skipped: true}, nil
	}
	if signature == "" {
		telemetry.SignatureVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: artifact has no signature", apperr.ErrSignatureInvalid)
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		telemetry.SignatureVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	for _, k := range v.keys {
		if ed25519.Verify(k.pub, data, sig) {
			telemetry.SignatureVerificationsTotal.WithLabelValues("verified").Inc()
			return &Result{KeyID: k.id}, nil
		}
	}
	telemetry.SignatureVerificationsTotal.WithLabelValues("invalid").Inc()
	return nil, fmt.Errorf("%w: no trusted key matches", apperr.ErrSignatureInvalid)
}

// VerifyFile reads path and verifies signature over its contents.
func (v *Verifier) VerifyFile(path, signature string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact for verification: %w", err)
	}
	return v.Verify(data, signature)
}
