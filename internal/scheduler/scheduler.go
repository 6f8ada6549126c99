// Package scheduler runs the daily due-payment generation in-process.
package scheduler

import (
	"context"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Generator is the job the scheduler triggers.
type Generator interface {
	GenerateDuePayments(ctx context.Context, today time.Time) (*domain.GenerationResult, error)
}

// Scheduler wraps a cron runner evaluated in the billing time zone.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger *zap.Logger
}

// New creates a stopped scheduler. Overlapping runs are skipped and panics
// inside a job are recovered and logged.
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger: logger.Named("cron").Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:    loc,
		logger: logger,
	}
}

// ScheduleDailyGeneration registers gen under spec. Each run gets its own
// deadline of timeout.
func (s *Scheduler) ScheduleDailyGeneration(spec string, gen Generator, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() { s.runGeneration(gen, timeout) })
	if err != nil {
		return err
	}
	s.logger.Info("scheduled due-payment generation",
		zap.String("spec", spec),
		zap.String("timezone", s.loc.String()),
	)
	return nil
}

func (s *Scheduler) runGeneration(gen Generator, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("starting due-payment generation job")

	res, err := gen.GenerateDuePayments(ctx, start.In(s.loc))
	if err != nil {
		s.logger.Error("due-payment generation failed", zap.Error(err))
		return
	}
	s.logger.Info("due-payment generation finished",
		zap.String("due_date", res.DueDate),
		zap.Bool("skipped", res.Skipped),
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with a job still running")
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
