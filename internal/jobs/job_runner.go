package jobs

import (
	"time"

	"property-ledger-backend/internal/config"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository"
	"property-ledger-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	entries    repository.LedgerEntryRepository
	properties repository.PropertyRepository
	notifier   service.Notifier
	metrics    *metrics.Metrics
	config     *config.Config
	now        func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(
	entries repository.LedgerEntryRepository,
	properties repository.PropertyRepository,
	notifier service.Notifier,
	m *metrics.Metrics,
	cfg *config.Config,
) *JobRunner {
	if m == nil {
		m = metrics.Nop()
	}
	return &JobRunner{
		entries:    entries,
		properties: properties,
		notifier:   notifier,
		metrics:    m,
		config:     cfg,
		now:        time.Now,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAllDailyJobs runs all daily jobs (for manual execution)
func (jr *JobRunner) RunAllDailyJobs() {
	jr.SendOverdueReminders()
}
