package models

import "time"

// Clip statuses
const (
	ClipStatusSuggested = "suggested"
	ClipStatusSliced    = "sliced"
	ClipStatusExported  = "exported"
)

// Clip is one AI-suggested segment of a video.
type Clip struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	StartSec  float64   `json:"start_sec"`
	EndSec    float64   `json:"end_sec"`
	Selected  bool      `json:"selected"`
	Status    string    `json:"status"`
	FilePath  string    `json:"file_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationSec returns the clip length in seconds.
func (c *Clip) DurationSec() float64 {
	return c.EndSec - c.StartSec
}
