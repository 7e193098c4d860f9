package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic reconciliation pass: scheduled rows whose fire
// time elapsed without a timer delivery (in-memory timers lost to a restart,
// or a delay-queue entry dropped) are re-dispatched. The scheduled->executing
// claim in the execution handler keeps a row from running twice when the
// original timer also fires.
type Scheduler struct {
	cron    *cron.Cron
	jobs    JobStore
	handler *ExecutionHandler
	logger  *zap.Logger
}

func NewScheduler(jobs JobStore, handler *ExecutionHandler, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		jobs:    jobs,
		handler: handler,
		logger:  logger,
	}
}

// Start runs one immediate reconciliation pass, then registers the periodic
// one and starts the cron loop.
func (s *Scheduler) Start() {
	s.logger.Info("Starting reconciliation scheduler...")

	s.reconcileOverdue()

	// Reconcile overdue scheduled jobs - every minute
	s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: reconcile overdue jobs")
		s.reconcileOverdue()
	})

	s.cron.Start()
}

// Stop halts the cron loop and returns a context that completes when
// in-flight entries finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) reconcileOverdue() {
	defer s.recoverFromPanic("reconcileOverdue")

	overdue, err := s.jobs.ListScheduledBefore(time.Now().UnixMilli())
	if err != nil {
		s.logger.Error("Failed to list overdue jobs", zap.Error(err))
		return
	}
	if len(overdue) == 0 {
		return
	}

	s.logger.Info("Dispatching overdue scheduled jobs", zap.Int("count", len(overdue)))
	for _, job := range overdue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		s.handler.fireJob(ctx, job.ID)
		cancel()
	}
}

func (s *Scheduler) recoverFromPanic(name string) {
	if r := recover(); r != nil {
		s.logger.Error("Recovered from panic in cron entry",
			zap.String("entry", name),
			zap.Any("panic", r))
	}
}
