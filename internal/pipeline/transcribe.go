package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"clipforge/internal/models"
)

// runGenerateSRT transcribes the extracted audio and writes both the SRT
// subtitle file and the raw timestamped transcript the analyze stage reads.
func (p *Pipeline) runGenerateSRT(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	if video.AudioPath == "" {
		return nil, fmt.Errorf("audio has not been extracted")
	}
	dir, err := p.ensureVideoDir(video.ID)
	if err != nil {
		return nil, err
	}

	// Engine progress is scaled to 95 so writing the artifacts still has
	// visible room before completion.
	result, err := p.transcriber.Transcribe(ctx, video.AudioPath, func(fraction float64) {
		rep.update(fraction*95, "transcribing")
	})
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}

	if err := rep.update(96, "writing subtitles"); err != nil {
		return nil, err
	}

	srtPath := filepath.Join(dir, "subtitles.srt")
	if err := os.WriteFile(srtPath, []byte(result.FormatAsSRT()), 0644); err != nil {
		return nil, fmt.Errorf("write srt: %w", err)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(p.transcriptPath(video.ID), raw, 0644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}

	video.SubtitlePath = srtPath
	if err := p.videos.Update(ctx, video); err != nil {
		return nil, fmt.Errorf("save subtitle path: %w", err)
	}
	return map[string]any{"segments": len(result.Segments)}, nil
}

func (p *Pipeline) transcriptPath(videoID string) string {
	return filepath.Join(p.videoDir(videoID), "transcript.json")
}
