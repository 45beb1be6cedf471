package ws

import "clipforge/internal/models"

// Client-to-server message types.
const (
	MsgSubscribe = "subscribe"
	MsgPing      = "ping"
)

// Server-to-client event types. EventPipelineComplete is the distinct
// terminal event so clients can stop listening without polling state.
const (
	EventProgressUpdate   = "progress_update"
	EventStageComplete    = "stage_complete"
	EventStageFailed      = "stage_failed"
	EventPipelineComplete = "pipeline_complete"
	EventPong             = "pong"
	EventError            = "error"
)

// ClientMessage is a message received from a connection.
type ClientMessage struct {
	Type       string `json:"type"`
	ResourceID string `json:"resource_id,omitempty"`
}

// Event is a message pushed to subscribed connections. Progress events embed
// the same snapshot the poll endpoint serves, so clients can switch
// transports without special-casing.
type Event struct {
	Type       string                   `json:"type"`
	ResourceID string                   `json:"resource_id,omitempty"`
	Stage      models.Stage             `json:"stage,omitempty"`
	Progress   float64                  `json:"progress,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Snapshot   *models.ProgressSnapshot `json:"snapshot,omitempty"`
}
