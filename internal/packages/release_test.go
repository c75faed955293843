package packages

import (
	"testing"
)

func releases(versions ...string) []ReleaseDocument {
	out := make([]ReleaseDocument, 0, len(versions))
	for _, v := range versions {
		out = append(out, ReleaseDocument{Version: v})
	}
	return out
}

func TestPickRelease_Latest(t *testing.T) {
	tests := []struct {
		name string
		in   []ReleaseDocument
		want string
	}{
		{"single", releases("1.0.0"), "1.0.0"},
		{"ascending input", releases("1.0.0", "1.2.0", "1.10.0"), "1.10.0"},
		{"descending input", releases("2.0.0", "1.9.9", "0.1"), "2.0.0"},
		{"prerelease below release", releases("3.0.0-beta.1", "3.0.0", "2.9"), "3.0.0"},
		{"unparseable sorts last", releases("garbage", "0.0.1"), "0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PickRelease(tt.in, "")
			if got == nil {
				t.Fatal("PickRelease returned nil")
			}
			if got.Version != tt.want {
				t.Errorf("PickRelease() = %q, want %q", got.Version, tt.want)
			}
		})
	}
}

// The newest release must win. Picking the last element after a descending
// sort would return the oldest one.
func TestPickRelease_LatestIsHighestNotLowest(t *testing.T) {
	got := PickRelease(releases("1.0.0", "3.0.0", "2.0.0"), "")
	if got == nil || got.Version != "3.0.0" {
		t.Fatalf("PickRelease() = %v, want 3.0.0", got)
	}
}

func TestPickRelease_Pinned(t *testing.T) {
	in := releases("1.0.0", "1.1.0", "1.2.0")

	if got := PickRelease(in, "1.1.0"); got == nil || got.Version != "1.1.0" {
		t.Errorf("PickRelease(1.1.0) = %v", got)
	}
	if got := PickRelease(in, "9.9.9"); got != nil {
		t.Errorf("PickRelease(9.9.9) = %v, want nil", got)
	}
	// Exact string match only: 1.1 is a different string from 1.1.0.
	if got := PickRelease(in, "1.1"); got != nil {
		t.Errorf("PickRelease(1.1) = %v, want nil", got)
	}
}

func TestPickRelease_Deterministic(t *testing.T) {
	a := releases("0.9", "1.0.0", "0.10", "1.0.0-rc1")
	b := releases("1.0.0-rc1", "0.10", "1.0.0", "0.9")
	for i := 0; i < 5; i++ {
		ra, rb := PickRelease(a, ""), PickRelease(b, "")
		if ra.Version != rb.Version {
			t.Fatalf("input order changed result: %q vs %q", ra.Version, rb.Version)
		}
	}
}

func TestPickRelease_Empty(t *testing.T) {
	if PickRelease(nil, "") != nil {
		t.Error("PickRelease(nil) != nil")
	}
}

func TestSortReleases_DoesNotMutateInput(t *testing.T) {
	in := releases("1.0.0", "2.0.0")
	sorted := SortReleases(in)
	if in[0].Version != "1.0.0" {
		t.Error("SortReleases mutated its input")
	}
	if sorted[0].Version != "2.0.0" {
		t.Errorf("sorted[0] = %q, want 2.0.0", sorted[0].Version)
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		remote, local string
		want          bool
	}{
		{"1.0.1", "1.0.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.0", "1.0.0", false},
		{"0.9", "1.0.0", false},
		{"1.10.0", "1.9.0", true},
		{"2.0.0", "2.0.0-beta", true},
	}
	for _, tt := range tests {
		if got := IsNewer(tt.remote, tt.local); got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.remote, tt.local, got, tt.want)
		}
	}
}

func TestValidateVersion(t *testing.T) {
	if err := ValidateVersion("1.2.3"); err != nil {
		t.Errorf("ValidateVersion(1.2.3) = %v", err)
	}
	if err := ValidateVersion("not.a.version!"); err == nil {
		t.Error("ValidateVersion accepted garbage")
	}
}
