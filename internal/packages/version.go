package packages

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ValidateVersion reports whether v is a parseable version string.
func ValidateVersion(v string) error {
	if _, err := version.NewVersion(v); err != nil {
		return fmt.Errorf("invalid version %q: %w", v, err)
	}
	return nil
}

// CompareVersions returns -1, 0 or 1. Unparseable versions sort below every
// parseable one and are ordered among themselves by string comparison.
func CompareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// IsNewer reports whether remote is strictly greater than local.
func IsNewer(remote, local string) bool {
	return CompareVersions(remote, local) > 0
}
