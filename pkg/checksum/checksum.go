// Package checksum computes and verifies SHA-256 digests of downloaded
// package archives. Artifact checksums are written either as bare hex or
// with an algorithm prefix ("sha256:<hex>").
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// AlgorithmSHA256 is the only supported digest algorithm.
const AlgorithmSHA256 = "sha256"

var (
	// ErrUnsupportedAlgorithm is returned for digests other than sha256.
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
	// ErrMalformed is returned when the digest is not 64 hex characters.
	ErrMalformed = errors.New("malformed checksum")
)

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Parse normalizes an artifact checksum to lowercase hex.
func Parse(checksum string) (string, error) {
	algo, digest, found := strings.Cut(strings.TrimSpace(checksum), ":")
	if !found {
		algo, digest = AlgorithmSHA256, algo
	}
	if !strings.EqualFold(algo, AlgorithmSHA256) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
	digest = strings.ToLower(digest)
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrMalformed, checksum)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformed, checksum)
	}
	return digest, nil
}

// VerifySHA256 verifies that the checksum of data matches the expected
// checksum. expected may carry a "sha256:" prefix.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	want, err := Parse(expected)
	if err != nil {
		return false, err
	}
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return actual == want, nil
}

// VerifyFile verifies the checksum of the file at path.
func VerifyFile(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer f.Close()
	return VerifySHA256(f, expected)
}
