package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"retail-medallion/internal/domain"
)

// Trigger starts a pipeline run. *Runner implements it.
type Trigger interface {
	Run(ctx context.Context, trigger string, only ...string) (*Result, error)
}

// Scheduler triggers full pipeline runs on a cron schedule. A tick that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Trigger
	logger  *slog.Logger
	mu      sync.Mutex
	ctx     context.Context
	entryID cron.EntryID
}

// NewScheduler parses the standard five-field cron expression spec.
func NewScheduler(runner Trigger, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, domain.ErrValidation("invalid cron schedule %q: %v", spec, err)
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
	}
	id, err := s.cron.AddFunc(spec, s.trigger)
	if err != nil {
		return nil, domain.ErrValidation("invalid cron schedule %q: %v", spec, err)
	}
	s.entryID = id
	logger.Info("scheduled pipeline", "schedule", spec)
	return s, nil
}

// Start begins triggering runs. Runs receive ctx, so cancelling it aborts an
// in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "next", s.cron.Entry(s.entryID).Next)
}

// Stop stops the scheduler and waits for a running pipeline to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	res, err := s.runner.Run(ctx, domain.TriggerTypeScheduled)
	if err != nil {
		s.logger.Warn("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished", "run_id", res.Run.ID, "status", res.Run.Status)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
