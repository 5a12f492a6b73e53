package application

import (
	"sort"

	"github.com/jobrunner/archivesync/internal/domain"
)

// FindStaleYears returns the years of the markers present locally but absent
// remotely. Markers are compared by exact filename; a local marker whose name
// also exists remotely is committed, whatever else either side holds. The
// result is sorted and free of duplicates. Names that are not valid markers
// are ignored.
func FindStaleYears(local, remote []string) []string {
	committed := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		committed[name] = struct{}{}
	}

	seen := make(map[string]struct{})
	var years []string
	for _, name := range local {
		if _, ok := committed[name]; ok {
			continue
		}
		m, err := domain.ParseMarker(name)
		if err != nil {
			continue
		}
		if _, ok := seen[m.Year]; ok {
			continue
		}
		seen[m.Year] = struct{}{}
		years = append(years, m.Year)
	}

	sort.Strings(years)
	return years
}

// MostRecentYear narrows a set of markers to those of the greatest year. It
// scopes the candidates before differencing so incremental daily runs only
// look at the year currently being ingested.
func MostRecentYear(markers []string) []string {
	groups, _ := domain.GroupMarkersByYear(markers)
	if len(groups) == 0 {
		return nil
	}

	years := make([]string, 0, len(groups))
	for year := range groups {
		years = append(years, year)
	}
	sort.Strings(years)

	return groups[years[len(years)-1]]
}
