package domain

import (
	"fmt"
	"path"
	"strings"
)

// KeyLayout decides where a year's files live inside the remote bucket.
type KeyLayout string

// Supported remote key layouts.
const (
	// LayoutConsolidated places every year's files under data/{filename}.
	LayoutConsolidated KeyLayout = "consolidated"
	// LayoutPerYear places files under {year}/{filename}.
	LayoutPerYear KeyLayout = "per-year"
)

const consolidatedPrefix = "data"

// ParseKeyLayout validates a configured layout name.
func ParseKeyLayout(s string) (KeyLayout, error) {
	switch KeyLayout(s) {
	case LayoutConsolidated, LayoutPerYear:
		return KeyLayout(s), nil
	case "":
		return LayoutConsolidated, nil
	default:
		return "", fmt.Errorf("%w: unknown key layout %q", ErrInvalidInput, s)
	}
}

// DataKey returns the object key of a data file of year.
func (l KeyLayout) DataKey(year, filename string) string {
	if l == LayoutPerYear {
		return path.Join(year, filename)
	}
	return path.Join(consolidatedPrefix, filename)
}

// MarkerKey returns the object key of a marker.
func (l KeyLayout) MarkerKey(m Marker) string {
	return l.DataKey(m.Year, m.Name())
}

// ListPrefix returns the prefix under which all markers of the layout live.
func (l KeyLayout) ListPrefix() string {
	if l == LayoutPerYear {
		return ""
	}
	return consolidatedPrefix + "/"
}

// MarkerFromKey extracts a marker filename from an object key. It reports
// false for keys that are not markers or sit outside the layout.
func (l KeyLayout) MarkerFromKey(key string) (string, bool) {
	dir, name := path.Split(key)
	if !IsMarkerName(name) {
		return "", false
	}
	dir = strings.TrimSuffix(dir, "/")

	m, err := ParseMarker(name)
	if err != nil {
		return "", false
	}

	if l == LayoutPerYear {
		if dir != m.Year {
			return "", false
		}
		return name, true
	}
	if dir != consolidatedPrefix {
		return "", false
	}
	return name, true
}
