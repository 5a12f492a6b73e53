// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/archivesync/internal/domain"
)

// Store names accepted by PruneMarkers.
const (
	StoreLocal  = "local"
	StoreRemote = "remote"
)

// Reconciler defines the orchestrator-facing operations. Expected partial
// failures are reported in results; errors are reserved for configuration
// and connectivity problems.
type Reconciler interface {
	// ListStaleYears returns the years whose local marker has no remote
	// counterpart.
	ListStaleYears(ctx context.Context) ([]string, error)

	// UploadYear uploads a year's data variants and then its marker.
	UploadYear(ctx context.Context, year string) (domain.UploadResult, error)

	// PruneMarkers collapses every year of the named store to its newest marker.
	PruneMarkers(ctx context.Context, store string) (int, error)

	// Run performs a full pass: compare, upload, prune.
	Run(ctx context.Context) (domain.RunReport, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	LastRun    *domain.RunReport // Most recent completed pass, if any
	LastError  string            // Error of the most recent pass, if any
	Components map[string]string // Component statuses
}
