package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// InputConfig names the MIDI input that plays the role of the host's
// incoming MIDI stream
type InputConfig struct {
	PortName    string `json:"portName,omitempty"`
	AutoConnect bool   `json:"autoConnect"`
}

// OutputConfig holds the external output selection and the port standing
// in for the host's outgoing MIDI buffer
type OutputConfig struct {
	Selected string `json:"selected,omitempty"`
	HostPort string `json:"hostPort,omitempty"`
}

// AudioConfig describes the simulated audio callback
type AudioConfig struct {
	SampleRate int `json:"sampleRate,omitempty"`
	BlockSize  int `json:"blockSize,omitempty"`
	LatencyMs  int `json:"latencyMs,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo int    `json:"lastTempo,omitempty"`
	Palette   string `json:"palette,omitempty"` // path to a .gpl palette
}

// Config is the main configuration structure
type Config struct {
	Input  InputConfig  `json:"input,omitempty"`
	Output OutputConfig `json:"output,omitempty"`
	Audio  AudioConfig  `json:"audio,omitempty"`
	UI     UIConfig     `json:"ui,omitempty"`
	Patch  string       `json:"patch,omitempty"` // YAML step patch loaded at start
	State  string       `json:"state,omitempty"` // saved state restored at start
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{AutoConnect: true},
		Audio: AudioConfig{
			SampleRate: 48000,
			BlockSize:  512,
			LatencyMs:  15,
		},
		UI: UIConfig{
			LastTempo: 120,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chance-machine"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing values take their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.BlockSize <= 0 {
		c.Audio.BlockSize = def.Audio.BlockSize
	}
	if c.Audio.LatencyMs < 0 {
		c.Audio.LatencyMs = def.Audio.LatencyMs
	}
	if c.UI.LastTempo <= 0 {
		c.UI.LastTempo = def.UI.LastTempo
	}
}
