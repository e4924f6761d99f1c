package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Pitch   PitchConfig   `yaml:"pitch"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the HTTP/WebSocket server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	MaxChunkBytes int64  `yaml:"max_chunk_bytes"`
}

// AudioConfig contains frame decoding parameters
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	MinFrameSamples int `yaml:"min_frame_samples"`
}

// PitchConfig contains fundamental-frequency estimator parameters
type PitchConfig struct {
	MinFrequency float64 `yaml:"min_frequency"` // Hz
	MaxFrequency float64 `yaml:"max_frequency"` // Hz
	FrameLength  int     `yaml:"frame_length"`  // samples
	HopLength    int     `yaml:"hop_length"`    // samples
	Threshold    float64 `yaml:"threshold"`
}

// StorageConfig selects and configures the session record store backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlite"
	Dir    string `yaml:"dir"`    // file driver: directory for per-session JSON records
	Path   string `yaml:"path"`   // sqlite driver: database file path
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Output   string         `yaml:"output"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls log-file rotation when Output is a file path
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Pitch.Validate(c.Audio.SampleRate); err != nil {
		return fmt.Errorf("pitch config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", s.MaxChunkBytes)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.MinFrameSamples < 1 {
		return fmt.Errorf("min_frame_samples must be at least 1, got %d", a.MinFrameSamples)
	}

	return nil
}

// Validate validates pitch estimator configuration against the audio sample rate
func (p *PitchConfig) Validate(sampleRate int) error {
	if p.MinFrequency <= 0 {
		return fmt.Errorf("min_frequency must be positive, got %f", p.MinFrequency)
	}

	if p.MaxFrequency <= p.MinFrequency {
		return fmt.Errorf("max_frequency (%f) must be greater than min_frequency (%f)",
			p.MaxFrequency, p.MinFrequency)
	}

	if p.MaxFrequency > float64(sampleRate)/2 {
		return fmt.Errorf("max_frequency (%f) exceeds Nyquist for %d Hz sample rate",
			p.MaxFrequency, sampleRate)
	}

	if p.FrameLength < 256 {
		return fmt.Errorf("frame_length must be at least 256 samples, got %d", p.FrameLength)
	}

	if p.HopLength < 1 || p.HopLength > p.FrameLength {
		return fmt.Errorf("hop_length must be between 1 and frame_length, got %d", p.HopLength)
	}

	if p.Threshold <= 0 || p.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", p.Threshold)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "file":
		if s.Dir == "" {
			return fmt.Errorf("dir cannot be empty for the file driver")
		}
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path cannot be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("driver must be 'file' or 'sqlite', got '%s'", s.Driver)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.FileOutput() {
		if l.Rotation.MaxSizeMB < 1 {
			return fmt.Errorf("rotation max_size_mb must be at least 1, got %d", l.Rotation.MaxSizeMB)
		}
		if l.Rotation.MaxBackups < 0 {
			return fmt.Errorf("rotation max_backups cannot be negative, got %d", l.Rotation.MaxBackups)
		}
		if l.Rotation.MaxAgeDays < 0 {
			return fmt.Errorf("rotation max_age_days cannot be negative, got %d", l.Rotation.MaxAgeDays)
		}
	}

	return nil
}

// FileOutput reports whether Output names a log file rather than a standard stream
func (l *LoggingConfig) FileOutput() bool {
	return l.Output != "" && l.Output != "stdout" && l.Output != "stderr"
}
