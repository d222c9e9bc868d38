package domain

import (
	"context"
	"io"
)

// ObjectStore reads and writes whole objects under one layer location.
// Put must replace the object atomically: readers see either the old or the
// new content, never a partial write.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	URI(key string) string
}

// RunRepository persists the pipeline run ledger.
type RunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) (*PipelineRun, error)
	FinishRun(ctx context.Context, id, status string, errMsg *string) error
	StartStage(ctx context.Context, runID, stage string) (*StageRun, error)
	FinishStage(ctx context.Context, id int64, status string, report StageReport, errMsg *string) error
	SkipStage(ctx context.Context, runID, stage string) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]PipelineRun, error)
}
