package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EDLTarget writes a CMX3600 edit decision list cutting the source video at
// the suggested clip boundaries, for import into Premiere and Resolve.
type EDLTarget struct {
	Dir string
}

func (t *EDLTarget) Name() string { return "edl" }

// Export writes <video-id>.edl into the target directory.
func (t *EDLTarget) Export(_ context.Context, m *Manifest) (string, error) {
	if len(m.Clips) == 0 {
		return "", fmt.Errorf("no clips to export")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\nFCM: NON-DROP FRAME\n\n", m.Title)

	recordPos := 0.0
	for i, clip := range m.Clips {
		dur := clip.EndSec - clip.StartSec
		fmt.Fprintf(&b, "%03d  AX       V     C        %s %s %s %s\n",
			i+1,
			edlTimecode(clip.StartSec),
			edlTimecode(clip.EndSec),
			edlTimecode(recordPos),
			edlTimecode(recordPos+dur),
		)
		fmt.Fprintf(&b, "* FROM CLIP NAME: %s\n\n", clip.Title)
		recordPos += dur
	}

	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	outputPath := filepath.Join(t.Dir, m.VideoID+".edl")
	if err := os.WriteFile(outputPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write edl: %w", err)
	}
	return outputPath, nil
}

// edlTimecode renders seconds as HH:MM:SS:FF at 25 fps.
func edlTimecode(sec float64) string {
	h := int(sec) / 3600
	m := int(sec) % 3600 / 60
	s := int(sec) % 60
	f := int((sec - float64(int(sec))) * 25)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", h, m, s, f)
}
