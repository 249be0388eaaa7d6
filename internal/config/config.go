// Package config loads tuning parameters for the tracking pipeline from a
// JSON file. All fields are pointers so a partial config overrides only what
// it names; every getter falls back to the built-in default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Built-in defaults. These match the constants carried by the camera, broker,
// and tracker packages.
const (
	DefaultCameraPollInterval  = 50 * time.Millisecond
	DefaultTrackerPollInterval = 100 * time.Millisecond
	DefaultSimilarityThreshold = 0.85
	DefaultMaxQueueDepth       = 0 // unbounded
	DefaultShutdownGrace       = 2 * time.Second
	DefaultEmbeddingDim        = 512
)

// maxConfigFileSize bounds config reads (1MB).
const maxConfigFileSize = 1 * 1024 * 1024

// Config represents the tunable parameters of the pipeline. Duration fields
// are strings like "50ms" so the JSON stays human-editable.
type Config struct {
	CameraPollInterval  *string  `json:"camera_poll_interval,omitempty"`
	TrackerPollInterval *string  `json:"tracker_poll_interval,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	MaxQueueDepth       *int     `json:"max_queue_depth,omitempty"`
	ShutdownGrace       *string  `json:"shutdown_grace,omitempty"`
	EmbeddingDim        *int     `json:"embedding_dim,omitempty"`
}

// Empty returns a Config with all fields unset; getters yield defaults.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Fields omitted from the file retain
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that set fields parse and fall in sane ranges.
func (c *Config) Validate() error {
	if c.CameraPollInterval != nil {
		if _, err := time.ParseDuration(*c.CameraPollInterval); err != nil {
			return fmt.Errorf("invalid camera_poll_interval: %w", err)
		}
	}
	if c.TrackerPollInterval != nil {
		if _, err := time.ParseDuration(*c.TrackerPollInterval); err != nil {
			return fmt.Errorf("invalid tracker_poll_interval: %w", err)
		}
	}
	if c.ShutdownGrace != nil {
		if _, err := time.ParseDuration(*c.ShutdownGrace); err != nil {
			return fmt.Errorf("invalid shutdown_grace: %w", err)
		}
	}
	if c.SimilarityThreshold != nil && (*c.SimilarityThreshold <= 0 || *c.SimilarityThreshold >= 1) {
		return fmt.Errorf("similarity_threshold must be in (0, 1), got %g", *c.SimilarityThreshold)
	}
	if c.MaxQueueDepth != nil && *c.MaxQueueDepth < 0 {
		return fmt.Errorf("max_queue_depth must be >= 0, got %d", *c.MaxQueueDepth)
	}
	if c.EmbeddingDim != nil && *c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be > 0, got %d", *c.EmbeddingDim)
	}
	return nil
}

// GetCameraPollInterval returns the camera poll cadence.
func (c *Config) GetCameraPollInterval() time.Duration {
	return c.duration(c.CameraPollInterval, DefaultCameraPollInterval)
}

// GetTrackerPollInterval returns the tracker drain cadence.
func (c *Config) GetTrackerPollInterval() time.Duration {
	return c.duration(c.TrackerPollInterval, DefaultTrackerPollInterval)
}

// GetShutdownGrace returns the bounded join timeout for workers.
func (c *Config) GetShutdownGrace() time.Duration {
	return c.duration(c.ShutdownGrace, DefaultShutdownGrace)
}

// GetSimilarityThreshold returns the cosine similarity cutoff for matches.
func (c *Config) GetSimilarityThreshold() float64 {
	if c.SimilarityThreshold != nil {
		return *c.SimilarityThreshold
	}
	return DefaultSimilarityThreshold
}

// GetMaxQueueDepth returns the broker queue bound; zero means unbounded.
func (c *Config) GetMaxQueueDepth() int {
	if c.MaxQueueDepth != nil {
		return *c.MaxQueueDepth
	}
	return DefaultMaxQueueDepth
}

// GetEmbeddingDim returns the expected signature vector length.
func (c *Config) GetEmbeddingDim() int {
	if c.EmbeddingDim != nil {
		return *c.EmbeddingDim
	}
	return DefaultEmbeddingDim
}

func (c *Config) duration(field *string, fallback time.Duration) time.Duration {
	if field == nil {
		return fallback
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return fallback
	}
	return d
}
