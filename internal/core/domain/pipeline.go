package domain

import "time"

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

type PipelineStage struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      StageStatus `json:"status"`
}

// DefaultStages is the fixed processing sequence every run walks through.
func DefaultStages() []PipelineStage {
	return []PipelineStage{
		{ID: 1, Name: "File Upload", Description: "Document received and validated", Status: StagePending},
		{ID: 2, Name: "OCR Processing", Description: "Extracting text from document", Status: StagePending},
		{ID: 3, Name: "AI Analysis", Description: "Applying machine learning models", Status: StagePending},
		{ID: 4, Name: "Field Extraction", Description: "Identifying and extracting key fields", Status: StagePending},
		{ID: 5, Name: "Confidence Scoring", Description: "Calculating accuracy scores", Status: StagePending},
	}
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// PipelineRun is a point-in-time copy of one run's isolated stage state.
type PipelineRun struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	Stages     []PipelineStage `json:"stages"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}
