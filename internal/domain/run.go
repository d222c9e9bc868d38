package domain

import "time"

// Run status constants.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"

	StageStatusRunning = "RUNNING"
	StageStatusSuccess = "SUCCESS"
	StageStatusFailed  = "FAILED"
	StageStatusSkipped = "SKIPPED"

	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// Stage names.
const (
	StageBronze = "bronze"
	StageSilver = "silver"
	StageGold   = "gold"
)

// PipelineRun is one execution of the medallion pipeline.
type PipelineRun struct {
	ID           string
	TriggerType  string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
	Stages       []StageRun
}

// StageRun is the outcome of a single stage within a pipeline run.
type StageRun struct {
	ID           int64
	RunID        string
	Stage        string
	Status       string
	InputRows    int64
	AdmittedRows int64
	RejectedRows int64
	Output       string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
}

// StageReport is what a stage returns to the runner on success.
type StageReport struct {
	InputRows    int64
	AdmittedRows int64
	RejectedRows int64
	Output       string
	Rejections   []Rejection
}
