package models

import "time"

// Video statuses
const (
	VideoStatusPending    = "pending"
	VideoStatusProcessing = "processing"
	VideoStatusReady      = "ready"
	VideoStatusFailed     = "failed"
)

// Video is a submitted source video and the files derived from it.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"`
	Duration     float64   `json:"duration,omitempty"` // seconds
	FilePath     string    `json:"file_path,omitempty"`
	AudioPath    string    `json:"audio_path,omitempty"`
	SubtitlePath string    `json:"subtitle_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
