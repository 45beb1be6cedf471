package models

import "time"

// Stage is one named step of the processing pipeline.
type Stage string

const (
	StageDownload     Stage = "download"
	StageExtractAudio Stage = "extract_audio"
	StageGenerateSRT  Stage = "generate_srt"
	StageAnalyze      Stage = "analyze"
	StageSlice        Stage = "slice"
	StageExport       Stage = "export"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []Stage{
	StageDownload,
	StageExtractAudio,
	StageGenerateSRT,
	StageAnalyze,
	StageSlice,
	StageExport,
}

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool {
	for _, st := range PipelineStages {
		if s == st {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a ProcessingTask.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further mutation is permitted.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ProcessingTask is a persisted instance of one stage execution for one video.
// A pending task doubles as the queue entry the worker picks up.
type ProcessingTask struct {
	ID              string         `json:"id"`
	VideoID         string         `json:"video_id"`
	Stage           Stage          `json:"stage"`
	Status          TaskStatus     `json:"status"`
	Progress        float64        `json:"progress"`
	Message         string         `json:"message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Error           string         `json:"error,omitempty"`
	CancelRequested bool           `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// TaskLogEntry is one append-only event tied to a task.
type TaskLogEntry struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
