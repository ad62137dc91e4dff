// Package config provides configuration loading and structs for the umekomi server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all configuration for the application. The file is a JSON
// object; modelName is the only required field.
type Config struct {
	Debug     bool         `json:"debug"`
	ModelName string       `json:"modelName"`
	Server    ServerConfig `json:"server"`
	Model     ModelConfig  `json:"model"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelConfig holds ONNX model runtime settings.
type ModelConfig struct {
	// Dir is the root directory holding one subdirectory per model name.
	Dir        string `json:"dir"`
	Dimensions int    `json:"dimensions"`
	ImageSize  int    `json:"imageSize"`
	MaxTokens  int    `json:"maxTokens"`
	CacheSize  int    `json:"cacheSize"`
	NumThreads int    `json:"numThreads"`
	UseGPU     bool   `json:"useGPU"`
	GPUDevice  int    `json:"gpuDevice"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands the model directory. modelName must be present: the process cannot
// serve without knowing which model to load.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("config %s: modelName is required", path)
	}

	ApplyDefaults(&cfg)

	cfg.Model.Dir = expandPath(cfg.Model.Dir, filepath.Dir(path))

	return &cfg, nil
}

// ModelDir returns the directory holding the configured model's files.
func (c *Config) ModelDir() string {
	return filepath.Join(c.Model.Dir, c.ModelName)
}

// VisualModelPath returns the path of the image-encoder ONNX graph.
func (c *Config) VisualModelPath() string {
	return filepath.Join(c.ModelDir(), "visual.onnx")
}

// TextualModelPath returns the path of the text-encoder ONNX graph.
func (c *Config) TextualModelPath() string {
	return filepath.Join(c.ModelDir(), "textual.onnx")
}

// VocabPath returns the path of the tokenizer vocabulary file.
func (c *Config) VocabPath() string {
	return filepath.Join(c.ModelDir(), "vocab.json")
}

// MergesPath returns the path of the tokenizer BPE merges file.
func (c *Config) MergesPath() string {
	return filepath.Join(c.ModelDir(), "merges.txt")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
