package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// chunkSec is the decode window for the local engine. Chunked decoding keeps
// memory bounded on long recordings and yields natural progress checkpoints
// and segment timestamps.
const chunkSec = 30

// LocalTranscriber runs speech recognition with a sherpa-onnx offline model.
type LocalTranscriber struct {
	config     *Config
	recognizer *sherpa.OfflineRecognizer
}

// NewLocalTranscriber creates a recognizer from the given configuration.
func NewLocalTranscriber(config *Config) (*LocalTranscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: config.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: config.EncoderPath,
				Decoder: config.DecoderPath,
				Joiner:  config.JoinerPath,
			},
			Tokens:     config.TokensPath,
			NumThreads: config.NumThreads,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create offline recognizer")
	}

	return &LocalTranscriber{config: config, recognizer: recognizer}, nil
}

// Transcribe decodes the WAV file chunk by chunk, reporting progress per
// chunk and emitting one segment per decoded chunk.
func (t *LocalTranscriber) Transcribe(ctx context.Context, wavPath string, onProgress func(fraction float64)) (*Result, error) {
	startTime := time.Now()

	samples, err := t.readWavFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	chunkSamples := chunkSec * t.config.SampleRate
	total := len(samples)
	var segments []Segment
	var texts []string

	for offset := 0; offset < total; offset += chunkSamples {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := offset + chunkSamples
		if end > total {
			end = total
		}

		text := t.decodeChunk(samples[offset:end])
		if text != "" {
			segments = append(segments, Segment{
				Text:      text,
				StartTime: float64(offset) / float64(t.config.SampleRate),
				EndTime:   float64(end) / float64(t.config.SampleRate),
			})
			texts = append(texts, text)
		}

		if onProgress != nil {
			onProgress(float64(end) / float64(total))
		}
	}

	return &Result{
		Text:     strings.Join(texts, " "),
		Segments: segments,
		Duration: time.Since(startTime).Seconds(),
	}, nil
}

func (t *LocalTranscriber) decodeChunk(samples []float32) string {
	stream := sherpa.NewOfflineStream(t.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(t.config.SampleRate, samples)
	t.recognizer.Decode(stream)
	return strings.TrimSpace(stream.GetResult().Text)
}

// Close releases resources used by the recognizer.
func (t *LocalTranscriber) Close() error {
	if t.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(t.recognizer)
		t.recognizer = nil
	}
	return nil
}

// readWavFile reads a WAV file and returns the audio samples.
func (t *LocalTranscriber) readWavFile(path string) ([]float32, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	wave := sherpa.ReadWave(path)
	if wave == nil || len(wave.Samples) == 0 {
		return nil, fmt.Errorf("failed to read WAV file or file is empty")
	}
	return wave.Samples, nil
}
