package domain

import "time"

// Failure is one entry of the failure log.
type Failure struct {
	Year       string    `json:"year,omitempty" yaml:"year,omitempty"`
	Identifier string    `json:"identifier" yaml:"identifier"` // local path or marker name
	Time       time.Time `json:"time" yaml:"time"`
}

// UploadResult is the outcome of one year's unit of work. Counts are files:
// the data variants plus the marker.
type UploadResult struct {
	Year          string `json:"year" yaml:"year"`
	Marker        string `json:"marker,omitempty" yaml:"marker,omitempty"`
	Succeeded     bool   `json:"succeeded" yaml:"succeeded"`
	UploadedCount int    `json:"uploaded_count" yaml:"uploaded_count"`
	FailedCount   int    `json:"failed_count" yaml:"failed_count"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunReport folds the per-year results of one reconciliation pass.
type RunReport struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	StaleYears     []string       `json:"stale_years" yaml:"stale_years"`
	YearsSucceeded int            `json:"years_succeeded" yaml:"years_succeeded"`
	YearsFailed    int            `json:"years_failed" yaml:"years_failed"`
	Results        []UploadResult `json:"results" yaml:"results"`
	LocalPruned    int            `json:"local_pruned" yaml:"local_pruned"`
	RemotePruned   int            `json:"remote_pruned" yaml:"remote_pruned"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time      `json:"finished_at" yaml:"finished_at"`
}

// Add folds one year's result into the report.
func (r *RunReport) Add(res UploadResult) {
	r.Results = append(r.Results, res)
	if res.Succeeded {
		r.YearsSucceeded++
	} else {
		r.YearsFailed++
	}
}

// Duration returns how long the pass took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OK reports whether every stale year was committed.
func (r RunReport) OK() bool {
	return r.YearsFailed == 0
}
