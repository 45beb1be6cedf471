// Package transcribe turns a 16kHz mono WAV file into timestamped text,
// either with a local sherpa-onnx model or a remote whisper-compatible
// HTTP service.
package transcribe

import "context"

// Transcriber converts speech audio into a transcription result.
// onProgress receives a fraction in [0,1]; engines report it as coarsely
// as their backend allows.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string, onProgress func(fraction float64)) (*Result, error)
}
