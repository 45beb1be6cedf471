package media

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// SupportedVideoFormats lists container formats accepted for slicing.
var SupportedVideoFormats = []string{".mp4", ".webm", ".mkv", ".mov", ".avi", ".m4v"}

// IsSupportedVideo checks if the file extension is a supported video format.
func IsSupportedVideo(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range SupportedVideoFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ProbeDuration returns the media duration in seconds using ffprobe.
func ProbeDuration(path string) (float64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, fmt.Errorf("ffprobe not found: please install ffmpeg")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, fmt.Errorf("input file not found: %s", path)
	}

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", string(output), err)
	}
	return duration, nil
}

// ExtractAudio extracts the audio track of input into a 16kHz mono WAV file.
// When totalSec is known (>0) and onProgress is non-nil, transcode progress
// is reported as a fraction of the processed time.
func ExtractAudio(ctx context.Context, inputPath, outputPath string, totalSec float64, onProgress func(fraction float64)) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found: please install ffmpeg")
	}
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// -vn: drop video, -ar 16000 -ac 1: ASR-friendly WAV,
	// -progress pipe:1: machine-readable progress on stdout
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-f", "wav",
		"-y",
		"-progress", "pipe:1",
		"-loglevel", "error",
		outputPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "out_time_us=") {
			continue
		}
		if onProgress == nil || totalSec <= 0 {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_us="), 10, 64)
		if err != nil {
			continue
		}
		fraction := float64(us) / 1e6 / totalSec
		if fraction > 1 {
			fraction = 1
		}
		onProgress(fraction)
	}

	if err := cmd.Wait(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg extraction failed: %w", err)
	}
	return nil
}

// CutClip cuts [startSec, endSec) out of input into output using stream copy.
func CutClip(ctx context.Context, inputPath, outputPath string, startSec, endSec float64) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found: please install ffmpeg")
	}
	if endSec <= startSec {
		return fmt.Errorf("invalid clip range: %.3f-%.3f", startSec, endSec)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// -ss before -i for fast keyframe seek, -c copy to avoid re-encoding
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", formatSeconds(startSec),
		"-i", inputPath,
		"-t", formatSeconds(endSec-startSec),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg cut failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
