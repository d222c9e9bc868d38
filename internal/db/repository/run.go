package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"retail-medallion/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

// RunRepo implements domain.RunRepository using SQLite.
type RunRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db, now: time.Now}
}

// CreateRun inserts a new pipeline run. An empty ID is replaced by a UUID and
// a zero StartedAt by the current time.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	out := *run
	out.Stages = nil
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Status == "" {
		out.Status = domain.RunStatusRunning
	}
	if out.StartedAt.IsZero() {
		out.StartedAt = r.now()
	}
	out.StartedAt = out.StartedAt.UTC().Round(0)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, trigger_type, status, started_at) VALUES (?, ?, ?, ?)`,
		out.ID, out.TriggerType, out.Status, formatTime(out.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("insert pipeline run: %w", err)
	}
	return &out, nil
}

// FinishRun sets the final status of a run.
func (r *RunRepo) FinishRun(ctx context.Context, id, status string, errMsg *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		status, formatTime(r.now()), nullStrFromPtr(errMsg), id)
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}
	return requireOneRow(res, "pipeline run %q not found", id)
}

// StartStage records a stage as RUNNING.
func (r *RunRepo) StartStage(ctx context.Context, runID, stage string) (*domain.StageRun, error) {
	started := r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, stage, domain.StageStatusRunning, formatTime(started))
	if err != nil {
		return nil, fmt.Errorf("insert stage run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("stage run id: %w", err)
	}
	return &domain.StageRun{
		ID:        id,
		RunID:     runID,
		Stage:     stage,
		Status:    domain.StageStatusRunning,
		StartedAt: &started,
	}, nil
}

// FinishStage records the outcome of a stage.
func (r *RunRepo) FinishStage(ctx context.Context, id int64, status string, report domain.StageReport, errMsg *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE stage_runs
		 SET status = ?, input_rows = ?, admitted_rows = ?, rejected_rows = ?, output = ?,
		     finished_at = ?, error_message = ?
		 WHERE id = ?`,
		status, report.InputRows, report.AdmittedRows, report.RejectedRows, report.Output,
		formatTime(r.now()), nullStrFromPtr(errMsg), id)
	if err != nil {
		return fmt.Errorf("finish stage run: %w", err)
	}
	return requireOneRow(res, "stage run %d not found", id)
}

// SkipStage records a stage that never started because an earlier stage failed.
func (r *RunRepo) SkipStage(ctx context.Context, runID, stage string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, status) VALUES (?, ?, ?)`,
		runID, stage, domain.StageStatusSkipped)
	if err != nil {
		return fmt.Errorf("insert skipped stage: %w", err)
	}
	return nil
}

// GetRun returns a run with its stages.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, trigger_type, status, started_at, finished_at, error_message
		 FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err, "pipeline run %q not found", id)
	}
	if run.Stages, err = r.listStages(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, each with its stages.
// A non-positive limit returns every run.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trigger_type, status, started_at, finished_at, error_message
		 FROM pipeline_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Stages are loaded after the cursor is closed; the pool has one connection.
	_ = rows.Close()

	for i := range runs {
		if runs[i].Stages, err = r.listStages(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (r *RunRepo) listStages(ctx context.Context, runID string) ([]domain.StageRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, input_rows, admitted_rows, rejected_rows, output,
		        started_at, finished_at, error_message
		 FROM stage_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var stages []domain.StageRun
	for rows.Next() {
		var (
			s                 domain.StageRun
			started, finished sql.NullString
			errMsg            sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.Stage, &s.Status, &s.InputRows, &s.AdmittedRows,
			&s.RejectedRows, &s.Output, &started, &finished, &errMsg); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if s.StartedAt, err = parseNullTime(started); err != nil {
			return nil, err
		}
		if s.FinishedAt, err = parseNullTime(finished); err != nil {
			return nil, err
		}
		s.ErrorMessage = ptrFromNullStr(errMsg)
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.PipelineRun, error) {
	var (
		run              domain.PipelineRun
		started          string
		finished, errMsg sql.NullString
	)
	if err := row.Scan(&run.ID, &run.TriggerType, &run.Status, &started, &finished, &errMsg); err != nil {
		return nil, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseNullTime(finished); err != nil {
		return nil, err
	}
	run.ErrorMessage = ptrFromNullStr(errMsg)
	return &run, nil
}

func requireOneRow(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound(format, args...)
	}
	return nil
}
