package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncYearUploads counts finished year units of work.
	IncYearUploads(success bool)

	// ObserveYearDuration records how long one year took.
	ObserveYearDuration(duration time.Duration)

	// IncFileUploads counts individual file uploads by kind (data, marker).
	IncFileUploads(kind string, success bool)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// AddMarkersPruned counts markers deleted from a store.
	AddMarkersPruned(store string, count int)

	// IncFailuresRecorded counts failure log appends.
	IncFailuresRecorded()

	// SetStaleYears sets the number of stale years found by the last comparison.
	SetStaleYears(count int)

	// SetLastRun records the completion time of the last reconciliation pass.
	SetLastRun(t time.Time, ok bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncYearUploads implements MetricsCollector.
func (n *NoOpMetrics) IncYearUploads(_ bool) {}

// ObserveYearDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveYearDuration(_ time.Duration) {}

// IncFileUploads implements MetricsCollector.
func (n *NoOpMetrics) IncFileUploads(_ string, _ bool) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// AddMarkersPruned implements MetricsCollector.
func (n *NoOpMetrics) AddMarkersPruned(_ string, _ int) {}

// IncFailuresRecorded implements MetricsCollector.
func (n *NoOpMetrics) IncFailuresRecorded() {}

// SetStaleYears implements MetricsCollector.
func (n *NoOpMetrics) SetStaleYears(_ int) {}

// SetLastRun implements MetricsCollector.
func (n *NoOpMetrics) SetLastRun(_ time.Time, _ bool) {}
