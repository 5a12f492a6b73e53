// Package domain contains the core domain models for archive reconciliation.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// MarkerSuffix terminates every confirmation marker filename.
	MarkerSuffix = "___complete"

	// MarkerSeparator sits between the year and the version token.
	MarkerSeparator = "_"

	yearLength = 4
)

// Marker is a parsed confirmation marker filename.
//
// A marker named "2020_0003___complete" states that, as of version "0003",
// every data file of year 2020 is present in the store that holds it.
// Version tokens sort lexicographically in chronological order, so the
// greatest marker name of a year is its current one.
type Marker struct {
	Year    string
	Version string
}

// ParseMarker parses a marker filename. Only the base name is considered,
// callers strip directories or key prefixes first.
func ParseMarker(name string) (Marker, error) {
	body, ok := strings.CutSuffix(name, MarkerSuffix)
	if !ok {
		return Marker{}, fmt.Errorf("%w: %q lacks suffix %s", ErrInvalidMarker, name, MarkerSuffix)
	}

	if len(body) < yearLength+len(MarkerSeparator)+1 {
		return Marker{}, fmt.Errorf("%w: %q is too short", ErrInvalidMarker, name)
	}

	year := body[:yearLength]
	if err := ValidateYear(year); err != nil {
		return Marker{}, fmt.Errorf("%w: %q: %v", ErrInvalidMarker, name, err)
	}

	rest, ok := strings.CutPrefix(body[yearLength:], MarkerSeparator)
	if !ok || rest == "" {
		return Marker{}, fmt.Errorf("%w: %q has no version token", ErrInvalidMarker, name)
	}

	return Marker{Year: year, Version: rest}, nil
}

// FormatMarker builds the marker filename for a year and version.
func FormatMarker(year, version string) string {
	return year + MarkerSeparator + version + MarkerSuffix
}

// Name returns the marker filename.
func (m Marker) Name() string {
	return FormatMarker(m.Year, m.Version)
}

// String implements fmt.Stringer.
func (m Marker) String() string {
	return m.Name()
}

// Less reports whether m is older than other.
func (m Marker) Less(other Marker) bool {
	return m.Name() < other.Name()
}

// IsMarkerName is a cheap filter used while listing stores.
func IsMarkerName(name string) bool {
	return strings.HasSuffix(name, MarkerSuffix)
}

// ValidateYear checks that year is a 4-digit label.
func ValidateYear(year string) error {
	if len(year) != yearLength {
		return fmt.Errorf("%w: %q must have %d digits", ErrInvalidYear, year, yearLength)
	}
	for _, r := range year {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q must be numeric", ErrInvalidYear, year)
		}
	}
	return nil
}

// GroupMarkersByYear parses names and groups them by year. Names that are
// not valid markers are returned separately so callers can report them.
func GroupMarkersByYear(names []string) (map[string][]string, []string) {
	groups := make(map[string][]string)
	var invalid []string
	for _, name := range names {
		m, err := ParseMarker(name)
		if err != nil {
			invalid = append(invalid, name)
			continue
		}
		groups[m.Year] = append(groups[m.Year], name)
	}
	for year := range groups {
		sort.Strings(groups[year])
	}
	return groups, invalid
}

// LatestMarker returns the lexicographically greatest marker name.
func LatestMarker(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	latest := names[0]
	for _, n := range names[1:] {
		if n > latest {
			latest = n
		}
	}
	return latest, true
}
