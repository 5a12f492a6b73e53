package application

import (
	"context"
	"testing"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
)

func newTestHealth(t *testing.T, runner *mockRunner, run bool) *HealthService {
	t.Helper()
	sync := NewSyncService(runner, time.Hour, newTestLogger())
	if run {
		_, _ = sync.TriggerSync(context.Background())
	}
	return NewHealthService(sync)
}

func TestHealthServiceIsHealthy(t *testing.T) {
	service := newTestHealth(t, &mockRunner{}, false)

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceIsReady(t *testing.T) {
	tests := []struct {
		name   string
		runner *mockRunner
		run    bool
		want   bool
	}{
		{
			name:   "no run yet",
			runner: &mockRunner{},
			want:   true,
		},
		{
			name:   "successful run",
			runner: &mockRunner{report: domain.RunReport{StaleYears: []string{}}},
			run:    true,
			want:   true,
		},
		{
			name:   "failed years still reach the stores",
			runner: &mockRunner{report: domain.RunReport{StaleYears: []string{"2020"}, YearsFailed: 1}},
			run:    true,
			want:   true,
		},
		{
			name:   "listing failed",
			runner: &mockRunner{err: errConnection},
			run:    true,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestHealth(t, tt.runner, tt.run)
			if got := service.IsReady(context.Background()); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	tests := []struct {
		name          string
		runner        *mockRunner
		run           bool
		wantLastSync  string
		wantStorage   string
		wantLastError bool
	}{
		{
			name:         "pending",
			runner:       &mockRunner{},
			wantLastSync: "pending",
			wantStorage:  "ok",
		},
		{
			name:         "ok",
			runner:       &mockRunner{report: domain.RunReport{StaleYears: []string{"2020"}, YearsSucceeded: 1}},
			run:          true,
			wantLastSync: "ok",
			wantStorage:  "ok",
		},
		{
			name:         "partial",
			runner:       &mockRunner{report: domain.RunReport{StaleYears: []string{"2020"}, YearsFailed: 1}},
			run:          true,
			wantLastSync: "partial",
			wantStorage:  "ok",
		},
		{
			name:          "unreachable",
			runner:        &mockRunner{err: errConnection},
			run:           true,
			wantLastSync:  "error",
			wantStorage:   "unreachable",
			wantLastError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestHealth(t, tt.runner, tt.run)
			details := service.GetHealthDetails(context.Background())

			if !details.Healthy {
				t.Error("expected healthy")
			}
			if got := details.Components["last_sync"]; got != tt.wantLastSync {
				t.Errorf("last_sync = %q, want %q", got, tt.wantLastSync)
			}
			if got := details.Components["storage"]; got != tt.wantStorage {
				t.Errorf("storage = %q, want %q", got, tt.wantStorage)
			}
			if (details.LastError != "") != tt.wantLastError {
				t.Errorf("LastError = %q", details.LastError)
			}
			if tt.run && details.LastRun == nil {
				t.Error("LastRun should be set")
			}
		})
	}
}
