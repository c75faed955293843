package packages

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/fairpm/fair-go/internal/apperr"
)

// Requirement keys understood by EnvironmentChecker.
const (
	RequirementWP        = "env:wp"
	RequirementPHP       = "env:php"
	RequirementPHPPrefix = "env:php-"
)

// ErrUnsupportedConstraint is returned for requirement keys or constraint
// forms the checker does not understand. Packages carrying one are treated as
// incompatible.
var ErrUnsupportedConstraint = fmt.Errorf("%w: unsupported version constraint", apperr.ErrIncompatibleVersion)

// RequirementChecker decides whether a release's requirements are met.
type RequirementChecker interface {
	Check(requires map[string]string) error
}

// Compatible reports whether checker accepts requires.
func Compatible(checker RequirementChecker, requires map[string]string) bool {
	return checker.Check(requires) == nil
}

// Environment describes the host a package is installed into.
type Environment struct {
	WPVersion  string
	PHPVersion string
	// Extensions lists loaded PHP extensions, lowercased.
	Extensions []string
}

// HasExtension reports whether ext is loaded. Comparison is case-insensitive.
func (e Environment) HasExtension(ext string) bool {
	return slices.ContainsFunc(e.Extensions, func(loaded string) bool {
		return strings.EqualFold(loaded, ext)
	})
}

// EnvironmentChecker checks requirements against a fixed Environment.
type EnvironmentChecker struct {
	Env Environment
}

// NewEnvironmentChecker creates a checker for env.
func NewEnvironmentChecker(env Environment) *EnvironmentChecker {
	return &EnvironmentChecker{Env: env}
}

// Check returns nil when every requirement holds. Keys are checked in sorted
// order and the first failure is returned.
func (c *EnvironmentChecker) Check(requires map[string]string) error {
	keys := make([]string, 0, len(requires))
	for k := range requires {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		constraint := strings.TrimSpace(requires[key])
		switch {
		case key == RequirementWP:
			if err := checkMinimum("WordPress", c.Env.WPVersion, constraint, true); err != nil {
				return err
			}
		case key == RequirementPHP:
			if err := checkMinimum("PHP", c.Env.PHPVersion, constraint, false); err != nil {
				return err
			}
		case strings.HasPrefix(key, RequirementPHPPrefix):
			ext := strings.TrimPrefix(key, RequirementPHPPrefix)
			if c.Env.HasExtension(ext) {
				continue
			}
			if constraint != "*" {
				return fmt.Errorf("%w: %s %q", ErrUnsupportedConstraint, key, constraint)
			}
			return fmt.Errorf("%w: %s", apperr.ErrMissingExtension, ext)
		default:
			return fmt.Errorf("%w: unknown requirement %s", ErrUnsupportedConstraint, key)
		}
	}
	return nil
}

// checkMinimum accepts only ">=" constraints. Pre-release host versions
// are ordered before their release, as PHP does; with core set the
// pre-release part is dropped first, as WordPress does for its own version.
func checkMinimum(name, have, constraint string, core bool) error {
	if !strings.HasPrefix(constraint, ">=") {
		return fmt.Errorf("%w: %s %q", ErrUnsupportedConstraint, name, constraint)
	}
	minimum, err := version.NewVersion(strings.TrimSpace(strings.TrimPrefix(constraint, ">=")))
	if err != nil {
		return fmt.Errorf("%w: %s %q", ErrUnsupportedConstraint, name, constraint)
	}
	v, err := version.NewVersion(have)
	if err != nil {
		return fmt.Errorf("%w: %s version %q is unknown", apperr.ErrIncompatibleVersion, name, have)
	}
	if core {
		v, minimum = v.Core(), minimum.Core()
	}
	if !v.GreaterThanOrEqual(minimum) {
		return fmt.Errorf("%w: your %s version is %s, however the package requires %s", apperr.ErrIncompatibleVersion, name, have, constraint)
	}
	return nil
}

// RequirementName returns a display name for a requirement key.
func RequirementName(key string) string {
	switch {
	case key == RequirementWP:
		return "WordPress"
	case key == RequirementPHP:
		return "PHP"
	case strings.HasPrefix(key, RequirementPHPPrefix):
		return strings.TrimPrefix(key, RequirementPHPPrefix)
	default:
		return key
	}
}
