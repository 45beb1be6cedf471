package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"clipforge/internal/media"
	"clipforge/internal/models"
)

// runExtractAudio transcodes the source into a 16kHz mono WAV for the ASR
// stage. Progress follows the transcoded timestamp.
func (p *Pipeline) runExtractAudio(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	if video.FilePath == "" {
		return nil, fmt.Errorf("video has not been downloaded")
	}
	dir, err := p.ensureVideoDir(video.ID)
	if err != nil {
		return nil, err
	}
	audioPath := filepath.Join(dir, "audio.wav")

	err = media.ExtractAudio(ctx, video.FilePath, audioPath, video.Duration, func(fraction float64) {
		rep.update(fraction*100, "extracting audio")
	})
	if err != nil {
		return nil, err
	}

	video.AudioPath = audioPath
	if err := p.videos.Update(ctx, video); err != nil {
		return nil, fmt.Errorf("save audio path: %w", err)
	}
	return map[string]any{"audio": filepath.Base(audioPath)}, nil
}
