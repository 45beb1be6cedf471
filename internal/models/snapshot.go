package models

import "time"

// StageProgress is the latest task state for one stage of a video.
type StageProgress struct {
	Stage     Stage      `json:"stage"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ProgressSnapshot is the aggregated current-progress view for a video,
// computed from its ProcessingTask rows. The push and poll paths both
// serve this exact shape.
type ProgressSnapshot struct {
	VideoID  string          `json:"video_id"`
	Stage    Stage           `json:"stage,omitempty"`
	Status   TaskStatus      `json:"status,omitempty"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Finished bool            `json:"finished"`
	Stages   []StageProgress `json:"stages"`
}
