package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shopboost/shopboost/internal/store"
)

const reconcileTimeout = time.Minute

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// reconcileJob realigns page revenue with the analytics records.
type reconcileJob struct {
	store  store.Store
	logger *slog.Logger
}

func (j reconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	drifts, err := j.store.Reconcile(ctx, true)
	if err != nil {
		j.logger.Error("reconcile failed", "error", err)
		return
	}
	for _, d := range drifts {
		j.logger.Warn("fixed revenue drift",
			"page", d.PageID,
			"page_revenue", d.PageRevenue.String(),
			"analytics_revenue", d.AnalyticsRevenue.String())
	}
}

// setupJobs schedules background jobs. An empty schedule disables them.
func (s *Server) setupJobs(schedule string) error {
	if schedule == "" {
		return nil
	}
	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	if _, err := c.AddJob(schedule, reconcileJob{store: s.store, logger: s.logger}); err != nil {
		return fmt.Errorf("failed to schedule reconcile %q: %w", schedule, err)
	}
	s.cron = c
	return nil
}
