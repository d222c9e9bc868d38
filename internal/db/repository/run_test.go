package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "retail-medallion/internal/db"
	"retail-medallion/internal/domain"
)

func setupRunRepo(t *testing.T) *RunRepo {
	t.Helper()
	return NewRunRepo(internaldb.OpenTestSQLite(t))
}

func strPtr(s string) *string { return &s }

func TestRun_CreateAndGet(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	run, err := repo.CreateRun(ctx, &domain.PipelineRun{TriggerType: domain.TriggerTypeManual})
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.TriggerTypeManual, got.TriggerType)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.Empty(t, got.Stages)
}

func TestRun_GetMissing(t *testing.T) {
	repo := setupRunRepo(t)

	_, err := repo.GetRun(context.Background(), "nope")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, err.Error(), "nope")
}

func TestRun_InvalidTrigger(t *testing.T) {
	repo := setupRunRepo(t)

	_, err := repo.CreateRun(context.Background(), &domain.PipelineRun{TriggerType: "WEBHOOK"})
	require.Error(t, err)
}

func TestRun_StageLifecycle(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	run, err := repo.CreateRun(ctx, &domain.PipelineRun{TriggerType: domain.TriggerTypeScheduled})
	require.NoError(t, err)

	bronze, err := repo.StartStage(ctx, run.ID, domain.StageBronze)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusRunning, bronze.Status)
	require.NoError(t, repo.FinishStage(ctx, bronze.ID, domain.StageStatusSuccess,
		domain.StageReport{InputRows: 10, Output: "lake/bronze/superstore.csv"}, nil))

	silver, err := repo.StartStage(ctx, run.ID, domain.StageSilver)
	require.NoError(t, err)
	require.NoError(t, repo.FinishStage(ctx, silver.ID, domain.StageStatusFailed,
		domain.StageReport{}, strPtr("schema: column \"Profitt\" not found")))

	require.NoError(t, repo.SkipStage(ctx, run.ID, domain.StageGold))
	require.NoError(t, repo.FinishRun(ctx, run.ID, domain.RunStatusFailed, strPtr("silver failed")))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "silver failed", *got.ErrorMessage)

	require.Len(t, got.Stages, 3)
	assert.Equal(t, domain.StageBronze, got.Stages[0].Stage)
	assert.Equal(t, domain.StageStatusSuccess, got.Stages[0].Status)
	assert.Equal(t, int64(10), got.Stages[0].InputRows)
	assert.Equal(t, "lake/bronze/superstore.csv", got.Stages[0].Output)
	require.NotNil(t, got.Stages[0].FinishedAt)

	assert.Equal(t, domain.StageStatusFailed, got.Stages[1].Status)
	require.NotNil(t, got.Stages[1].ErrorMessage)
	assert.Contains(t, *got.Stages[1].ErrorMessage, "Profitt")

	assert.Equal(t, domain.StageStatusSkipped, got.Stages[2].Status)
	assert.Nil(t, got.Stages[2].StartedAt)
}

func TestRun_StageRequiresRun(t *testing.T) {
	repo := setupRunRepo(t)

	_, err := repo.StartStage(context.Background(), "missing-run", domain.StageBronze)
	require.Error(t, err, "foreign key")
}

func TestRun_FinishMissing(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	var nf *domain.NotFoundError
	err := repo.FinishRun(ctx, "missing", domain.RunStatusSuccess, nil)
	assert.True(t, errors.As(err, &nf))

	err = repo.FinishStage(ctx, 42, domain.StageStatusSuccess, domain.StageReport{}, nil)
	assert.True(t, errors.As(err, &nf))
}

func TestRun_ListNewestFirst(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		run, err := repo.CreateRun(ctx, &domain.PipelineRun{
			TriggerType: domain.TriggerTypeManual,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		_, err = repo.StartStage(ctx, run.ID, domain.StageBronze)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})
	for _, r := range all {
		assert.Len(t, r.Stages, 1)
	}

	limited, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].ID)
}
