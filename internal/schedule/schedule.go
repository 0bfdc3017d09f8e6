// Package schedule triggers the report job on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job interface {
	Run(ctx context.Context) (domain.Report, distribute.Summary, error)
}

// Parse accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 9 * * 1".
func Parse(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid report cron %q: %w", expr, err)
	}
	return sched, nil
}

type Scheduler struct {
	expr   string
	sched  cron.Schedule
	loc    *time.Location
	job    Job
	logger *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(expr string, loc *time.Location, job Job, logger *zap.Logger) (*Scheduler, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		expr:   expr,
		sched:  sched,
		loc:    loc,
		job:    job,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first trigger time after from, in the scheduler's location.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.sched.Next(from.In(s.loc))
}

// Run blocks, running the job at every trigger time until ctx is done. Job
// failures are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("report scheduler started", zap.String("cron", s.expr), zap.String("timezone", s.loc.String()))
	for {
		now := s.now().In(s.loc)
		next := s.sched.Next(now)
		wait := next.Sub(now)
		s.logger.Info("next report run scheduled",
			zap.String("at", next.Format("Mon Jan 2 15:04 MST")),
			zap.Duration("in", wait.Round(time.Minute)))

		select {
		case <-ctx.Done():
			s.logger.Info("report scheduler stopped")
			return
		case <-s.after(wait):
		}

		rep, sum, err := s.job.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled report failed", zap.Error(err))
			continue
		}
		s.logger.Info("scheduled report complete",
			zap.Int64("report_id", rep.ID),
			zap.Strings("delivered", sum.Delivered),
			zap.Int("failed", len(sum.Failed)),
			zap.Strings("skipped", sum.Skipped))
	}
}
