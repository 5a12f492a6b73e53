package application

import (
	"context"

	"github.com/jobrunner/archivesync/internal/ports/input"
)

var _ input.HealthChecker = (*HealthService)(nil)

// HealthService provides health check functionality.
type HealthService struct {
	sync *SyncService
}

// NewHealthService creates a new health service.
func NewHealthService(sync *SyncService) *HealthService {
	return &HealthService{
		sync: sync,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady reports whether the last pass reached the stores. A service that
// has not finished a pass yet is ready.
func (s *HealthService) IsReady(_ context.Context) bool {
	report, err := s.sync.LastResult()
	if report == nil {
		return true
	}
	// A pass that never got to compare could not reach a store
	return err == nil || report.StaleYears != nil || report.YearsSucceeded+report.YearsFailed > 0
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	report, err := s.sync.LastResult()

	components := map[string]string{
		"storage":   "ok",
		"last_sync": "pending",
	}

	details := input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		LastRun:    report,
		Components: components,
	}

	if report != nil {
		components["last_sync"] = "ok"
		if !report.OK() {
			components["last_sync"] = "partial"
		}
	}
	if err != nil {
		details.LastError = err.Error()
		components["last_sync"] = "error"
		if !details.Ready {
			components["storage"] = "unreachable"
		}
	}

	return details
}
