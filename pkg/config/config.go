// Package config loads the beatgrid settings file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AudioConfig holds audio output settings
type AudioConfig struct {
	SampleRate int           `yaml:"sampleRate"`
	SampleDir  string        `yaml:"sampleDir,omitempty"`
	Lookahead  time.Duration `yaml:"lookahead"`
	Interval   time.Duration `yaml:"interval"`
}

// SoundscapeConfig holds ambient track settings
type SoundscapeConfig struct {
	Dir     string  `yaml:"dir,omitempty"`
	Volume  float64 `yaml:"volume"`
	Muted   bool    `yaml:"muted"`
	Ambient string  `yaml:"ambient,omitempty"`
	Victory string  `yaml:"victory,omitempty"`
	Loss    string  `yaml:"loss,omitempty"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"baseURL"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the main configuration structure
type Config struct {
	DataDir    string           `yaml:"dataDir,omitempty"`
	Author     string           `yaml:"author,omitempty"`
	LastTempo  int              `yaml:"lastTempo,omitempty"`
	Audio      AudioConfig      `yaml:"audio"`
	Soundscape SoundscapeConfig `yaml:"soundscape"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LastTempo: 120,
		Audio: AudioConfig{
			SampleRate: 44100,
			Lookahead:  100 * time.Millisecond,
			Interval:   25 * time.Millisecond,
		},
		Soundscape: SoundscapeConfig{
			Volume:  0.5,
			Ambient: "ambient.mp3",
			Victory: "victory.mp3",
			Loss:    "loss.mp3",
		},
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080/",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "beatgrid"), nil
}

// Path returns the full path to config.yaml
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path. A missing file yields the defaults; fields
// absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values that cannot be clamped
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sampleRate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Soundscape.Volume < 0 || c.Soundscape.Volume > 1 {
		return fmt.Errorf("soundscape.volume must be within 0..1, got %v", c.Soundscape.Volume)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ResolveDataDir returns DataDir or the default data directory
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// SoundscapePath joins a soundscape file name onto the configured directory
func (c *Config) SoundscapePath(name string) string {
	if name == "" || filepath.IsAbs(name) || c.Soundscape.Dir == "" {
		return name
	}
	return filepath.Join(c.Soundscape.Dir, name)
}
