package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"clipforge/internal/models"
	"clipforge/internal/transcribe"
)

// runAnalyze asks the language model for highlight suggestions based on the
// timestamped transcript and replaces the video's previous suggestions.
// Suggested clips start out selected so the slice stage has work even when
// nobody curates them.
func (p *Pipeline) runAnalyze(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	raw, err := os.ReadFile(p.transcriptPath(video.ID))
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var result transcribe.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	if err := rep.update(10, "requesting clip suggestions"); err != nil {
		return nil, err
	}

	suggestions, err := p.llm.SuggestClips(ctx, video.Title, timestampedTranscript(&result), video.Duration)
	if err != nil {
		return nil, err
	}

	if err := rep.update(80, "saving suggestions"); err != nil {
		return nil, err
	}

	if err := p.clips.DeleteSuggestedByVideo(ctx, video.ID); err != nil {
		return nil, fmt.Errorf("clear previous suggestions: %w", err)
	}
	for _, s := range suggestions {
		clip := &models.Clip{
			VideoID:  video.ID,
			Title:    s.Title,
			Summary:  s.Summary,
			Reason:   s.Reason,
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Selected: true,
		}
		if err := p.clips.Create(ctx, clip); err != nil {
			return nil, fmt.Errorf("save clip suggestion: %w", err)
		}
	}
	return map[string]any{"clips": len(suggestions)}, nil
}

// timestampedTranscript renders segments as "[start-end] text" lines so the
// model can anchor its suggestions to real timestamps.
func timestampedTranscript(r *transcribe.Result) string {
	if len(r.Segments) == 0 {
		return r.Text
	}
	var b strings.Builder
	for _, seg := range r.Segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.StartTime, seg.EndTime, seg.Text)
	}
	return b.String()
}
