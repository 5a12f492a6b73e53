package domain

import "testing"

func TestVariantName(t *testing.T) {
	tests := []struct {
		year     string
		filename string
		want     string
	}{
		{"2020", "2020_full.csv", "full"},
		{"2020", "2020_missing_lat_long.csv", "missing_lat_long"},
		{"2020", "2020_.csv", "2020_"},
		{"2020", "2019_full.csv", "2019_full"},
		{"2020", "72503014732.csv", "72503014732"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := VariantName(tt.year, tt.filename); got != tt.want {
				t.Errorf("VariantName(%q, %q) = %q, want %q", tt.year, tt.filename, got, tt.want)
			}
		})
	}
}
