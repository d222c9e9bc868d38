package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"retail-medallion/internal/domain"
)

// rejectionSample bounds how many rejections are logged per stage.
const rejectionSample = 5

// Result is the outcome of one pipeline run.
type Result struct {
	Run     *domain.PipelineRun
	Reports map[string]domain.StageReport
}

// Runner executes stages in dependency order, one at a time, and records the
// run in the ledger.
type Runner struct {
	stages       map[string]Stage
	order        []string
	runs         domain.RunRepository
	logger       *slog.Logger
	stageTimeout time.Duration
}

// NewRunner validates the stage graph. A non-positive stageTimeout disables
// the per-stage deadline.
func NewRunner(stages []Stage, runs domain.RunRepository, logger *slog.Logger, stageTimeout time.Duration) (*Runner, error) {
	levels, err := ResolveExecutionOrder(stages)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return &Runner{
		stages:       byName,
		order:        order,
		runs:         runs,
		logger:       logger,
		stageTimeout: stageTimeout,
	}, nil
}

// Order returns stage names in execution order.
func (r *Runner) Order() []string {
	return slices.Clone(r.order)
}

// Run executes the named stages (all stages when none are named) in
// execution order. The first failing stage stops the run; the stages after it
// are recorded as SKIPPED. The returned error is that stage's error.
func (r *Runner) Run(ctx context.Context, trigger string, only ...string) (*Result, error) {
	selected, err := r.selectStages(only)
	if err != nil {
		return nil, err
	}

	// Ledger writes must land even when ctx is cancelled mid-stage.
	ledgerCtx := context.WithoutCancel(ctx)

	run, err := r.runs.CreateRun(ledgerCtx, &domain.PipelineRun{
		TriggerType: trigger,
		Status:      domain.RunStatusRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	logger := r.logger.With("run_id", run.ID, "trigger", trigger)
	logger.Info("pipeline run started", "stages", selected)

	result := &Result{Reports: make(map[string]domain.StageReport)}
	var runErr error
	for _, name := range selected {
		if runErr != nil {
			if err := r.runs.SkipStage(ledgerCtx, run.ID, name); err != nil {
				return nil, fmt.Errorf("record skipped stage %s: %w", name, err)
			}
			logger.Warn("stage skipped", "stage", name)
			continue
		}

		report, err := r.runStage(ctx, ledgerCtx, run.ID, r.stages[name], logger)
		if err != nil {
			runErr = err
			continue
		}
		result.Reports[name] = report
	}

	status := domain.RunStatusSuccess
	var errMsg *string
	if runErr != nil {
		status = domain.RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := r.runs.FinishRun(ledgerCtx, run.ID, status, errMsg); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}

	if result.Run, err = r.runs.GetRun(ledgerCtx, run.ID); err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if runErr != nil {
		logger.Error("pipeline run failed", "error", runErr)
	} else {
		logger.Info("pipeline run finished")
	}
	return result, runErr
}

func (r *Runner) selectStages(only []string) ([]string, error) {
	if len(only) == 0 {
		return r.Order(), nil
	}
	for _, name := range only {
		if _, ok := r.stages[name]; !ok {
			return nil, domain.ErrValidation("unknown stage: %s", name)
		}
	}
	var out []string
	for _, name := range r.order {
		if slices.Contains(only, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// runStage executes one stage under the stage timeout and records its outcome.
func (r *Runner) runStage(ctx, ledgerCtx context.Context, runID string, stage Stage, logger *slog.Logger) (domain.StageReport, error) {
	logger = logger.With("stage", stage.Name)

	sr, err := r.runs.StartStage(ledgerCtx, runID, stage.Name)
	if err != nil {
		return domain.StageReport{}, fmt.Errorf("record stage start: %w", err)
	}

	stageCtx := ctx
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	start := time.Now()
	report, err := invoke(stageCtx, stage)
	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("stage %s timed out after %s: %w", stage.Name, r.stageTimeout, err)
	}
	if err != nil {
		msg := err.Error()
		if ferr := r.runs.FinishStage(ledgerCtx, sr.ID, domain.StageStatusFailed, report, &msg); ferr != nil {
			logger.Error("record stage failure", "error", ferr)
		}
		logger.Error("stage failed", "error", err, "duration", time.Since(start))
		return domain.StageReport{}, err
	}

	if err := r.runs.FinishStage(ledgerCtx, sr.ID, domain.StageStatusSuccess, report, nil); err != nil {
		return domain.StageReport{}, fmt.Errorf("record stage result: %w", err)
	}
	logger.Info("stage completed",
		"input", report.InputRows,
		"admitted", report.AdmittedRows,
		"rejected", report.RejectedRows,
		"output", report.Output,
		"duration", time.Since(start),
	)
	for _, rej := range report.Rejections[:min(len(report.Rejections), rejectionSample)] {
		logger.Debug("row rejected", "line", rej.Line, "field", rej.Field, "value", rej.Value, "reason", rej.Reason)
	}
	return report, nil
}

// invoke runs a stage, turning a panic into an error.
func invoke(ctx context.Context, stage Stage) (report domain.StageReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, p)
		}
	}()
	return stage.Run(ctx)
}
