package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
)

// apiCooldown is the minimum spacing of manually triggered syncs.
const apiCooldown = 30 * time.Second

// Runner performs one reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	Report          domain.RunReport `json:"report"`
	Error           string           `json:"error,omitempty"`
	NextScheduledAt time.Time        `json:"next_scheduled_at,omitempty"`
}

// SyncService runs reconciliation passes on a schedule, on request from the
// API, and when the archive watcher reports new markers.
type SyncService struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	notifyCh chan struct{}
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent sync operations
	syncOpMutex sync.Mutex

	// Next scheduled sync and last outcome, for reporting
	nextSync   time.Time
	lastReport *domain.RunReport
	lastErr    error
	syncMu     sync.RWMutex
}

// NewSyncService creates a new sync service.
func NewSyncService(runner Runner, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		notifyCh: make(chan struct{}, 1),
		// Initialize to past time to allow immediate first API call
		lastAPISync: time.Now().Add(-apiCooldown - time.Second),
	}
}

// Start begins the periodic sync scheduler. When runNow is set the first
// pass starts immediately instead of after one interval.
func (s *SyncService) Start(ctx context.Context, runNow bool) {
	s.logger.Info("starting sync service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx, runNow)
}

// run is the main sync loop.
func (s *SyncService) run(ctx context.Context, runNow bool) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(time.Now().Add(s.interval))

	if runNow {
		s.doSync(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			s.doSync(ctx)
			s.setNextSync(time.Now().Add(s.interval))
		case <-s.notifyCh:
			s.logger.Debug("change-triggered sync")
			s.doSync(ctx)
		}
	}
}

// Stop gracefully stops the sync service.
func (s *SyncService) Stop() {
	s.logger.Info("stopping sync service")
	close(s.stopCh)
	s.wg.Wait()
}

// Notify asks the loop for a sync soon. Notifications arriving while one is
// already pending are coalesced.
func (s *SyncService) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// TriggerSync manually triggers a sync operation with rate limiting.
// Returns domain.ErrRateLimited if called within the cooldown.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	if time.Since(s.lastAPISync) < apiCooldown {
		s.apiMutex.Unlock()
		return SyncResult{}, domain.ErrRateLimited
	}
	s.lastAPISync = time.Now()
	s.apiMutex.Unlock()

	report, err := s.sync(ctx)
	result := SyncResult{
		Report:          report,
		NextScheduledAt: s.getNextSync(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}

// doSync performs the sync operation without returning detailed results.
func (s *SyncService) doSync(ctx context.Context) {
	report, err := s.sync(ctx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return
	}
	s.logger.Info("sync completed",
		"run_id", report.RunID,
		"stale", len(report.StaleYears),
		"succeeded", report.YearsSucceeded,
		"failed", report.YearsFailed,
		"local_pruned", report.LocalPruned,
		"remote_pruned", report.RemotePruned,
		"duration", report.Duration(),
	)
}

func (s *SyncService) sync(ctx context.Context) (domain.RunReport, error) {
	// Prevent concurrent sync operations
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	report, err := s.runner.Run(ctx)

	s.syncMu.Lock()
	s.lastReport = &report
	s.lastErr = err
	s.syncMu.Unlock()

	return report, err
}

// LastResult returns the outcome of the most recent pass, or nil if none ran.
func (s *SyncService) LastResult() (*domain.RunReport, error) {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.lastReport, s.lastErr
}

// setNextSync updates the next scheduled sync time.
func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

// getNextSync returns the next scheduled sync time.
func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
