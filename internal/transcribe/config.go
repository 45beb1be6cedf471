package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the configuration for the local ASR recognizer.
type Config struct {
	ModelPath   string // base directory for the model
	EncoderPath string
	DecoderPath string
	JoinerPath  string
	TokensPath  string
	NumThreads  int
	SampleRate  int
}

// NewConfig creates a configuration from a model directory, auto-detecting
// the model files (int8-quantized variants preferred).
func NewConfig(modelDir string) (*Config, error) {
	config := &Config{
		ModelPath:  modelDir,
		NumThreads: 2,
		SampleRate: 16000,
	}

	config.EncoderPath = findModelFile(modelDir, []string{
		"encoder-epoch-99-avg-1.int8.onnx",
		"encoder.int8.onnx",
		"encoder-epoch-99-avg-1.onnx",
		"encoder.onnx",
	})
	if config.EncoderPath == "" {
		return nil, fmt.Errorf("encoder model not found in %s", modelDir)
	}

	config.DecoderPath = findModelFile(modelDir, []string{
		"decoder-epoch-99-avg-1.onnx",
		"decoder.onnx",
	})
	if config.DecoderPath == "" {
		return nil, fmt.Errorf("decoder model not found in %s", modelDir)
	}

	config.JoinerPath = findModelFile(modelDir, []string{
		"joiner-epoch-99-avg-1.int8.onnx",
		"joiner.int8.onnx",
		"joiner-epoch-99-avg-1.onnx",
		"joiner.onnx",
	})
	if config.JoinerPath == "" {
		return nil, fmt.Errorf("joiner model not found in %s", modelDir)
	}

	config.TokensPath = findModelFile(modelDir, []string{"tokens.txt"})
	if config.TokensPath == "" {
		return nil, fmt.Errorf("tokens.txt not found in %s", modelDir)
	}

	return config, nil
}

// Validate checks that all configured model files exist.
func (c *Config) Validate() error {
	paths := []string{c.EncoderPath, c.DecoderPath, c.JoinerPath, c.TokensPath}
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("incomplete model config")
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("model file not found: %s", p)
		}
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	return nil
}

func findModelFile(dir string, candidates []string) string {
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
