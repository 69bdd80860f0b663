// Package version parses and compares the "major.minor" version that nodes
// announce in their discovery records.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the version announced by this library.
const Current = "1.0"

// ErrIncompatible is returned by Check for a different major version.
var ErrIncompatible = errors.New("incompatible version")

// Version is a parsed "major.minor" version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	min, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(maj), Minor: uint16(min)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Check parses s and verifies it is compatible with Current.
func Check(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	if cur, _ := Parse(Current); !cur.Compatible(v) {
		return fmt.Errorf("%w: %s (running %s)", ErrIncompatible, v, Current)
	}
	return nil
}
