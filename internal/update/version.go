package update

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is a parsed application version. Versions are dotted numeric
// components with an optional prerelease and build metadata; a prerelease
// sorts before its release and build metadata never affects ordering.
type Version struct {
	v *goversion.Version
}

// ParseVersion parses a version string.
// Supports formats like "0.8.2", "v0.8.2", "1.2", "0.9.0-rc.1+build.5".
func ParseVersion(s string) (*Version, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("invalid version format: empty")
	}
	v, err := goversion.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}
	return &Version{v: v}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized representation, e.g. "1.2.0".
func (v *Version) String() string {
	return v.v.String()
}

// Original returns the string the version was parsed from.
func (v *Version) Original() string {
	return v.v.Original()
}

// Compare compares two versions
// Returns:
//   - 1 if v > other
//   - 0 if v == other
//   - -1 if v < other
func (v *Version) Compare(other *Version) int {
	return v.v.Compare(other.v)
}

// IsGreaterThan returns true if v > other
func (v *Version) IsGreaterThan(other *Version) bool {
	return v.Compare(other) > 0
}

// IsEqual returns true if v == other
func (v *Version) IsEqual(other *Version) bool {
	return v.Compare(other) == 0
}
