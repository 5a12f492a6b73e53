package domain

import (
	"path/filepath"
	"strings"
)

// DataFile is one data variant of a year present in the local archive.
type DataFile struct {
	Year    string
	Name    string // base filename, e.g. 2020_full.csv
	Path    string // absolute or root-relative local path
	Size    int64
	Variant string // e.g. full, missing_lat_long
}

// VariantName derives the variant from a "{year}_{variant}.ext" filename.
// Names that do not follow the convention yield the name without extension.
func VariantName(year, filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if v, ok := strings.CutPrefix(base, year+"_"); ok && v != "" {
		return v
	}
	return base
}
