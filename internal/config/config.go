// Package config loads and saves the user's persistent configuration
// from ~/.ccsearch/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ModelName is the sentence-encoder the embedder runs.
const ModelName = "all-MiniLM-L6-v2"

// Config holds the tunable knobs for indexing and search.
type Config struct {
	BM25Weight      float64 `toml:"bm25_weight"`
	VecWeight       float64 `toml:"vec_weight"`
	RRFK            float64 `toml:"rrf_k"`
	MaxResults      int     `toml:"max_results"`
	DefaultDays     int     `toml:"default_days"`
	MaxTextChars    int     `toml:"max_text_chars"`
	BatchSize       int     `toml:"batch_size"`
	TranscriptsRoot string  `toml:"transcripts_root"`
	ModelName       string  `toml:"model_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BM25Weight:   1.0,
		VecWeight:    1.0,
		RRFK:         60.0,
		MaxResults:   20,
		DefaultDays:  30,
		MaxTextChars: 8000,
		BatchSize:    32,
		ModelName:    ModelName,
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	dataDir string
}

// NewManager creates a configuration manager rooted at the user's
// ~/.ccsearch directory.
func NewManager() (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewManagerAt(filepath.Join(home, ".ccsearch")), nil
}

// NewManagerAt creates a manager rooted at an explicit data directory.
func NewManagerAt(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// DataDir returns the directory holding the index, models, and config.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// ConfigPath returns the absolute path to config.toml.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.dataDir, "config.toml")
}

// DBPath returns the absolute path to the index store file.
func (m *Manager) DBPath() string {
	return filepath.Join(m.dataDir, "index.db")
}

// ModelsDir returns the directory holding downloaded model artifacts.
func (m *Manager) ModelsDir() string {
	return filepath.Join(m.dataDir, "models")
}

// Load reads the configuration from disk. A missing file yields the
// defaults and no error; unknown keys are ignored.
func (m *Manager) Load() (*Config, error) {
	cfg := Default()

	path := m.ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyFallbacks()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyFallbacks()
	return cfg, nil
}

// Save writes the configuration to disk, creating the data directory
// if needed.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	f, err := os.Create(m.ConfigPath())
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Exists checks whether a config file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.ConfigPath())
	return !os.IsNotExist(err)
}

// applyFallbacks replaces zero or negative values a hand-edited file may
// have left with usable defaults. vec_weight is the exception: only a
// negative value is replaced, and zero is kept.
func (c *Config) applyFallbacks() {
	d := Default()
	if c.BM25Weight <= 0 {
		c.BM25Weight = d.BM25Weight
	}
	if c.VecWeight < 0 {
		c.VecWeight = d.VecWeight
	}
	if c.RRFK <= 0 {
		c.RRFK = d.RRFK
	}
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	if c.DefaultDays <= 0 {
		c.DefaultDays = d.DefaultDays
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = d.MaxTextChars
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ModelName == "" {
		c.ModelName = d.ModelName
	}
	if c.TranscriptsRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.TranscriptsRoot = filepath.Join(home, ".claude", "projects")
		}
	}
}
