package export

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// SRTTarget writes one subtitle file per clip, cut from the source video's
// .srt and shifted to clip-local time, so each sliced clip file can be
// published with matching captions.
type SRTTarget struct {
	Dir string
}

func (t *SRTTarget) Name() string { return "srt" }

// Export writes <video-id>_NNN.srt per clip into the target directory and
// returns the directory.
func (t *SRTTarget) Export(_ context.Context, m *Manifest) (string, error) {
	if len(m.Clips) == 0 {
		return "", fmt.Errorf("no clips to export")
	}
	if m.SubtitlePath == "" {
		return "", fmt.Errorf("video has no subtitle file")
	}

	data, err := os.ReadFile(m.SubtitlePath)
	if err != nil {
		return "", fmt.Errorf("failed to read subtitles: %w", err)
	}
	cues, err := parseSRT(string(data))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	for i, clip := range m.Clips {
		outputPath := filepath.Join(t.Dir, fmt.Sprintf("%s_%03d.srt", m.VideoID, i+1))
		content := clipSRT(cues, clip.StartSec, clip.EndSec)
		if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("failed to write srt: %w", err)
		}
	}
	return t.Dir, nil
}

type srtCue struct {
	start float64
	end   float64
	text  string
}

// parseSRT reads the cues out of SubRip text. Index lines are discarded and
// renumbered on output.
func parseSRT(text string) ([]srtCue, error) {
	var cues []srtCue
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) >= 2 && !strings.Contains(lines[0], "-->") {
			lines = lines[1:] // index line
		}
		if len(lines) < 2 || !strings.Contains(lines[0], "-->") {
			continue
		}
		parts := strings.SplitN(lines[0], "-->", 2)
		start, err := parseSRTTime(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		end, err := parseSRTTime(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		cues = append(cues, srtCue{start: start, end: end, text: strings.Join(lines[1:], "\n")})
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("no subtitle cues found")
	}
	return cues, nil
}

func parseSRTTime(s string) (float64, error) {
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("bad subtitle timestamp %q", s)
	}
	return float64(h)*3600 + float64(m)*60 + float64(sec) + float64(ms)/1000, nil
}

// clipSRT keeps the cues overlapping [startSec, endSec), shifted to
// clip-local time and clamped at the clip boundaries.
func clipSRT(cues []srtCue, startSec, endSec float64) string {
	var b strings.Builder
	n := 0
	for _, cue := range cues {
		if cue.end <= startSec || cue.start >= endSec {
			continue
		}
		n++
		start := math.Max(cue.start, startSec) - startSec
		end := math.Min(cue.end, endSec) - startSec
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, srtTimestamp(start), srtTimestamp(end), cue.text)
	}
	return b.String()
}

func srtTimestamp(sec float64) string {
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
