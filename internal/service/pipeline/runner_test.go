package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-medallion/internal/domain"
	"retail-medallion/internal/testutil"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recorder builds stages that append their name to calls when run.
type recorder struct {
	calls []string
}

func (r *recorder) stage(name string, deps []string, err error) Stage {
	return Stage{
		Name:      name,
		DependsOn: deps,
		Run: func(_ context.Context) (domain.StageReport, error) {
			r.calls = append(r.calls, name)
			if err != nil {
				return domain.StageReport{}, err
			}
			return domain.StageReport{InputRows: 3, AdmittedRows: 2, RejectedRows: 1, Output: "out/" + name}, nil
		},
	}
}

func medallionStages(r *recorder, failAt string, failErr error) []Stage {
	errFor := func(name string) error {
		if name == failAt {
			return failErr
		}
		return nil
	}
	return []Stage{
		r.stage(domain.StageGold, []string{domain.StageSilver}, errFor(domain.StageGold)),
		r.stage(domain.StageSilver, []string{domain.StageBronze}, errFor(domain.StageSilver)),
		r.stage(domain.StageBronze, nil, errFor(domain.StageBronze)),
	}
}

func stageStatuses(run *domain.PipelineRun) map[string]string {
	out := make(map[string]string, len(run.Stages))
	for _, s := range run.Stages {
		out[s.Stage] = s.Status
	}
	return out
}

func TestRunner_RunsInOrder(t *testing.T) {
	rec := &recorder{}
	repo := &testutil.MockRunRepo{}
	runner, err := NewRunner(medallionStages(rec, "", nil), repo, discardLogger(), time.Minute)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), domain.TriggerTypeManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"bronze", "silver", "gold"}, rec.calls)
	assert.Equal(t, domain.RunStatusSuccess, res.Run.Status)
	assert.Equal(t, domain.TriggerTypeManual, res.Run.TriggerType)
	require.Len(t, res.Run.Stages, 3)
	for _, s := range res.Run.Stages {
		assert.Equal(t, domain.StageStatusSuccess, s.Status)
		assert.Equal(t, int64(2), s.AdmittedRows)
	}
	assert.Equal(t, "out/silver", res.Reports[domain.StageSilver].Output)
}

func TestRunner_FailureSkipsLaterStages(t *testing.T) {
	rec := &recorder{}
	repo := &testutil.MockRunRepo{}
	boom := domain.ErrSchema("Profitt")
	runner, err := NewRunner(medallionStages(rec, domain.StageSilver, boom), repo, discardLogger(), time.Minute)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), domain.TriggerTypeManual)
	require.Error(t, err)
	var serr *domain.SchemaError
	require.True(t, errors.As(err, &serr))

	assert.Equal(t, []string{"bronze", "silver"}, rec.calls)
	require.NotNil(t, res)
	assert.Equal(t, domain.RunStatusFailed, res.Run.Status)
	require.NotNil(t, res.Run.ErrorMessage)
	assert.Contains(t, *res.Run.ErrorMessage, "Profitt")
	assert.Equal(t, map[string]string{
		domain.StageBronze: domain.StageStatusSuccess,
		domain.StageSilver: domain.StageStatusFailed,
		domain.StageGold:   domain.StageStatusSkipped,
	}, stageStatuses(res.Run))
}

func TestRunner_OnlySelectedStages(t *testing.T) {
	rec := &recorder{}
	repo := &testutil.MockRunRepo{}
	runner, err := NewRunner(medallionStages(rec, "", nil), repo, discardLogger(), time.Minute)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), domain.TriggerTypeManual, domain.StageGold, domain.StageSilver)
	require.NoError(t, err)
	assert.Equal(t, []string{"silver", "gold"}, rec.calls)
	assert.Len(t, res.Run.Stages, 2)

	_, err = runner.Run(context.Background(), domain.TriggerTypeManual, "platinum")
	assert.ErrorAs(t, err, new(*domain.ValidationError))
}

func TestRunner_StageTimeout(t *testing.T) {
	repo := &testutil.MockRunRepo{}
	slow := Stage{Name: "slow", Run: func(ctx context.Context) (domain.StageReport, error) {
		<-ctx.Done()
		return domain.StageReport{}, ctx.Err()
	}}
	runner, err := NewRunner([]Stage{slow}, repo, discardLogger(), 20*time.Millisecond)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), domain.TriggerTypeScheduled)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out after 20ms")
	assert.Equal(t, domain.RunStatusFailed, res.Run.Status)
	assert.Equal(t, domain.StageStatusFailed, res.Run.Stages[0].Status)
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	repo := &testutil.MockRunRepo{}
	bad := Stage{Name: "bad", Run: func(context.Context) (domain.StageReport, error) {
		panic("nil map")
	}}
	runner, err := NewRunner([]Stage{bad}, repo, discardLogger(), 0)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), domain.TriggerTypeManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: nil map")
	assert.Equal(t, domain.RunStatusFailed, res.Run.Status)
}

func TestRunner_LedgerFailure(t *testing.T) {
	rec := &recorder{}
	repo := &testutil.MockRunRepo{
		CreateRunFn: func(context.Context, *domain.PipelineRun) (*domain.PipelineRun, error) {
			return nil, errors.New("disk full")
		},
	}
	runner, err := NewRunner(medallionStages(rec, "", nil), repo, discardLogger(), time.Minute)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), domain.TriggerTypeManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, rec.calls, "no stage runs without a ledger entry")
}

func TestNewRunner_InvalidGraph(t *testing.T) {
	_, err := NewRunner([]Stage{{Name: "a", DependsOn: []string{"a"}}}, &testutil.MockRunRepo{}, discardLogger(), 0)
	assert.ErrorAs(t, err, new(*domain.ValidationError))
}
