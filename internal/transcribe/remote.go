package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteTranscriber calls a whisper-compatible transcription HTTP service
// (POST /audio/transcriptions, verbose_json response). The service reports
// no granular progress, so only start and end checkpoints are emitted.
type RemoteTranscriber struct {
	client *resty.Client
	model  string
}

// NewRemoteTranscriber creates a client for the service at baseURL.
func NewRemoteTranscriber(baseURL, apiKey string) *RemoteTranscriber {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Minute)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &RemoteTranscriber{client: client, model: "whisper-1"}
}

type remoteSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type remoteResponse struct {
	Text     string          `json:"text"`
	Segments []remoteSegment `json:"segments"`
}

type remoteError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the WAV file and converts the verbose_json response.
func (t *RemoteTranscriber) Transcribe(ctx context.Context, wavPath string, onProgress func(fraction float64)) (*Result, error) {
	startTime := time.Now()
	if onProgress != nil {
		onProgress(0)
	}

	var body remoteResponse
	var apiErr remoteError
	resp, err := t.client.R().
		SetContext(ctx).
		SetFile("file", wavPath).
		SetFormData(map[string]string{
			"model":           t.model,
			"response_format": "verbose_json",
		}).
		SetResult(&body).
		SetError(&apiErr).
		Post("/audio/transcriptions")
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("transcription service error: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("transcription service error: %s", resp.Status())
	}

	segments := make([]Segment, 0, len(body.Segments))
	for _, s := range body.Segments {
		segments = append(segments, Segment{
			Text:      s.Text,
			StartTime: s.Start,
			EndTime:   s.End,
		})
	}

	if onProgress != nil {
		onProgress(1)
	}
	return &Result{
		Text:     body.Text,
		Segments: segments,
		Duration: time.Since(startTime).Seconds(),
	}, nil
}
