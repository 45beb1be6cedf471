// Package llm asks a chat-completion model to propose highlight clips for a
// transcribed video.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClipSuggestion is one segment the model proposes cutting.
type ClipSuggestion struct {
	Title    string  `json:"title"`
	Summary  string  `json:"summary"`
	Reason   string  `json:"reason"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client *resty.Client
	model  string
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL, apiKey, model string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Minute)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Client{client: client, model: model}
}

const systemPrompt = `You are a video editor assistant. Given a timestamped transcript,
propose 3 to 8 self-contained highlight clips. Respond with a JSON array only,
no prose, where each element is:
{"title": string, "summary": string, "reason": string, "start_sec": number, "end_sec": number}
Clips must not overlap, must be 15-120 seconds long, and must stay within the
video duration.`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SuggestClips sends the transcript for analysis and parses the suggested
// clips out of the model's reply.
func (c *Client) SuggestClips(ctx context.Context, title, transcript string, durationSec float64) ([]ClipSuggestion, error) {
	user := fmt.Sprintf("Video title: %s\nDuration: %.0f seconds\n\nTranscript:\n%s",
		title, durationSec, transcript)

	var body chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: user},
			},
		}).
		SetResult(&body).
		SetError(&body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if resp.IsError() {
		if body.Error != nil {
			return nil, fmt.Errorf("llm service error: %s", body.Error.Message)
		}
		return nil, fmt.Errorf("llm service error: %s", resp.Status())
	}
	if len(body.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	suggestions, err := parseSuggestions(body.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return validateSuggestions(suggestions, durationSec)
}

// parseSuggestions extracts the JSON array from the reply, tolerating
// surrounding code fences or prose.
func parseSuggestions(content string) ([]ClipSuggestion, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in llm reply")
	}

	var suggestions []ClipSuggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to parse llm reply: %w", err)
	}
	return suggestions, nil
}

// validateSuggestions drops malformed entries and clamps ranges to the
// video duration.
func validateSuggestions(in []ClipSuggestion, durationSec float64) ([]ClipSuggestion, error) {
	var out []ClipSuggestion
	for _, s := range in {
		if s.Title == "" || s.EndSec <= s.StartSec || s.StartSec < 0 {
			continue
		}
		if durationSec > 0 && s.EndSec > durationSec {
			s.EndSec = durationSec
		}
		if s.EndSec-s.StartSec < 1 {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("llm produced no usable clip suggestions")
	}
	return out, nil
}
