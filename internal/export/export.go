// Package export hands finished clips to third-party editing tools.
// Each target is one-shot: it either produces its artifact (or delivers its
// payload) or fails, with no partial-progress reporting.
package export

import (
	"context"
	"fmt"
)

// ClipEntry describes one sliced clip in an export manifest.
type ClipEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	FilePath string  `json:"file_path,omitempty"`
}

// Manifest is the full description of what gets exported.
type Manifest struct {
	VideoID      string      `json:"video_id"`
	Title        string      `json:"title"`
	DurationSec  float64     `json:"duration_sec"`
	SourcePath   string      `json:"source_path,omitempty"`
	SubtitlePath string      `json:"subtitle_path,omitempty"`
	Clips        []ClipEntry `json:"clips"`
}

// Target writes a manifest to one editing-tool destination and returns a
// human-readable location (file path or URL).
type Target interface {
	Name() string
	Export(ctx context.Context, m *Manifest) (string, error)
}

// Registry maps target names to configured targets.
type Registry struct {
	targets map[string]Target
}

// NewRegistry builds the registry of available targets. The webhook target
// is only registered when a URL is configured.
func NewRegistry(exportDir, webhookURL string) *Registry {
	r := &Registry{targets: make(map[string]Target)}
	r.add(&SRTTarget{Dir: exportDir})
	r.add(&FCPXMLTarget{Dir: exportDir})
	r.add(&EDLTarget{Dir: exportDir})
	if webhookURL != "" {
		r.add(NewWebhookTarget(webhookURL))
	}
	return r
}

func (r *Registry) add(t Target) {
	r.targets[t.Name()] = t
}

// Get returns the named target.
func (r *Registry) Get(name string) (Target, error) {
	t, ok := r.targets[name]
	if !ok {
		return nil, fmt.Errorf("unknown export target: %s", name)
	}
	return t, nil
}

// Names lists the registered target names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	return names
}
