package packages

import (
	"slices"
)

// SortReleases returns a copy of releases ordered by version, newest first.
// Equal versions keep their input order.
func SortReleases(releases []ReleaseDocument) []ReleaseDocument {
	sorted := slices.Clone(releases)
	slices.SortStableFunc(sorted, func(a, b ReleaseDocument) int {
		return CompareVersions(b.Version, a.Version)
	})
	return sorted
}

// PickRelease selects a release. With an empty version it returns the newest
// release; otherwise the first release whose version string matches exactly.
// It returns nil when nothing matches.
func PickRelease(releases []ReleaseDocument, version string) *ReleaseDocument {
	if len(releases) == 0 {
		return nil
	}
	sorted := SortReleases(releases)
	if version == "" {
		return &sorted[0]
	}
	for i := range sorted {
		if sorted[i].Version == version {
			return &sorted[i]
		}
	}
	return nil
}
