package export

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// FCPXMLTarget writes a Final Cut Pro XML project referencing the sliced
// clip files.
type FCPXMLTarget struct {
	Dir string
}

func (t *FCPXMLTarget) Name() string { return "fcpxml" }

type fcpxml struct {
	XMLName   xml.Name     `xml:"fcpxml"`
	Version   string       `xml:"version,attr"`
	Resources fcpResources `xml:"resources"`
	Library   fcpLibrary   `xml:"library"`
}

type fcpResources struct {
	Assets []fcpAsset `xml:"asset"`
}

type fcpAsset struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Src      string `xml:"src,attr"`
	Start    string `xml:"start,attr"`
	Duration string `xml:"duration,attr"`
}

type fcpLibrary struct {
	Event fcpEvent `xml:"event"`
}

type fcpEvent struct {
	Name    string       `xml:"name,attr"`
	Project []fcpProject `xml:"project"`
}

type fcpProject struct {
	Name     string      `xml:"name,attr"`
	Sequence fcpSequence `xml:"sequence"`
}

type fcpSequence struct {
	Spine fcpSpine `xml:"spine"`
}

type fcpSpine struct {
	Clips []fcpClipRef `xml:"asset-clip"`
}

type fcpClipRef struct {
	Ref      string `xml:"ref,attr"`
	Name     string `xml:"name,attr"`
	Duration string `xml:"duration,attr"`
}

// Export writes <video-id>.fcpxml into the target directory.
func (t *FCPXMLTarget) Export(_ context.Context, m *Manifest) (string, error) {
	if len(m.Clips) == 0 {
		return "", fmt.Errorf("no clips to export")
	}

	doc := fcpxml{Version: "1.10"}
	spine := fcpSpine{}
	for i, clip := range m.Clips {
		id := fmt.Sprintf("r%d", i+1)
		doc.Resources.Assets = append(doc.Resources.Assets, fcpAsset{
			ID:       id,
			Name:     clip.Title,
			Src:      "file://" + clip.FilePath,
			Start:    fcpTime(0),
			Duration: fcpTime(clip.EndSec - clip.StartSec),
		})
		spine.Clips = append(spine.Clips, fcpClipRef{
			Ref:      id,
			Name:     clip.Title,
			Duration: fcpTime(clip.EndSec - clip.StartSec),
		})
	}
	doc.Library = fcpLibrary{Event: fcpEvent{
		Name: m.Title,
		Project: []fcpProject{{
			Name:     m.Title,
			Sequence: fcpSequence{Spine: spine},
		}},
	}}

	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	outputPath := filepath.Join(t.Dir, m.VideoID+".fcpxml")

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal fcpxml: %w", err)
	}
	content := []byte(xml.Header + string(data) + "\n")
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write fcpxml: %w", err)
	}
	return outputPath, nil
}

// fcpTime renders seconds as a rational FCPXML time value (1/1000s base).
func fcpTime(sec float64) string {
	return fmt.Sprintf("%d/1000s", int64(sec*1000))
}
