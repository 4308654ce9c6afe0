// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// DataDir is where to store data files (cache, socket, etc.)
	DataDir string `json:"dataDir"`

	// Audio settings
	Audio AudioConfig `json:"audio"`

	// Engine settings
	Engine EngineConfig `json:"engine"`

	// Behavior settings
	Behavior BehaviorConfig `json:"behavior"`
}

// AudioConfig contains audio output settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `json:"sampleRate"`

	// Channels for audio output (default: 2)
	Channels int `json:"channels"`

	// RingBufferMs is the decoded-audio buffer capacity in milliseconds
	// (default: 500)
	RingBufferMs int `json:"ringBufferMs"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`
}

// EngineConfig contains playback engine tunables
type EngineConfig struct {
	// DecodeAheadMs is how far ahead of playback decoding runs
	// (default: 350)
	DecodeAheadMs int `json:"decodeAheadMs"`

	// CrossfadeMs is the track-transition overlap; 0 means gapless
	// (default: 0)
	CrossfadeMs int `json:"crossfadeMs"`

	// FadeCurve selects "equalPower" or "linear" (default: equalPower)
	FadeCurve string `json:"fadeCurve"`

	// LoopCrossfadeMs applies a fade at interior loop wraps; loop points
	// are normally pre-aligned so the default is 0
	LoopCrossfadeMs int `json:"loopCrossfadeMs"`

	// CorruptFrameLimit is how many consecutive corrupt frames are
	// skipped before the track is abandoned (default: 8)
	CorruptFrameLimit int `json:"corruptFrameLimit"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// PreviousRestartSec - Previous restarts the current track instead
	// of going back when playback is past this many seconds (default: 5)
	PreviousRestartSec float64 `json:"previousRestartSec"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			Channels:      2,
			RingBufferMs:  500,
			DefaultVolume: 1.0,
		},
		Engine: EngineConfig{
			DecodeAheadMs:     350,
			CrossfadeMs:       0,
			FadeCurve:         "equalPower",
			LoopCrossfadeMs:   0,
			CorruptFrameLimit: 8,
		},
		Behavior: BehaviorConfig{
			PreviousRestartSec: 5,
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update updates the configuration and saves it
func (m *Manager) Update(config *Config) error {
	m.config = config
	return m.Save()
}
