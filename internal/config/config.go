// Package config loads skywave's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds skywave runtime configuration loaded from TOML.
type Config struct {
	UI          UIConfig          `toml:"ui"`
	Player      PlayerConfig      `toml:"player"`
	Recognition RecognitionConfig `toml:"recognition"`
	History     HistoryConfig     `toml:"history"`
	Session     SessionConfig     `toml:"session"`
}

type UIConfig struct {
	NoColor  bool `toml:"no_color"`
	PageSize int  `toml:"page_size"`
}

type PlayerConfig struct {
	InitialVolume  int `toml:"initial_volume"`
	VolumeStep     int `toml:"volume_step"`
	BufferSeconds  int `toml:"buffer_seconds"`
	BitrateKbps    int `toml:"bitrate_kbps"`
	ReconnectTries int `toml:"reconnect_tries"`
	NetworkTimeout int `toml:"network_timeout_ms"`
}

// RecognitionConfig holds the recognition loop tunables. The defaults trade
// detection latency against load on the recognition service.
type RecognitionConfig struct {
	Disabled     bool   `toml:"disabled"`
	VibraPath    string `toml:"vibra_path"`
	IntervalSecs int    `toml:"interval_secs"`
	TimeoutSecs  int    `toml:"timeout_secs"`
	SampleSecs   int    `toml:"sample_secs"`
}

type HistoryConfig struct {
	Path string `toml:"path"`
}

// SessionConfig controls persistence of the UI session (selected stream,
// volume) across runs.
type SessionConfig struct {
	Disabled bool `toml:"disabled"`
}

// Interval returns the recognition cadence.
func (c RecognitionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// Timeout returns the per-call recognition deadline.
func (c RecognitionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SampleDuration returns the audio window submitted per cycle.
func (c RecognitionConfig) SampleDuration() time.Duration {
	return time.Duration(c.SampleSecs) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads configuration from disk. If path is empty, a default
// OS-specific location is used; a missing file yields the defaults, since a
// radio should play with zero setup.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(cfgPath)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return &cfg, cfgPath, nil
}

func defaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "skywave", "config.toml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.UI.PageSize == 0 {
		cfg.UI.PageSize = 20
	}
	if cfg.Player.InitialVolume == 0 {
		cfg.Player.InitialVolume = 50
	}
	if cfg.Player.VolumeStep == 0 {
		cfg.Player.VolumeStep = 10
	}
	if cfg.Player.BufferSeconds == 0 {
		cfg.Player.BufferSeconds = 30
	}
	if cfg.Player.BitrateKbps == 0 {
		cfg.Player.BitrateKbps = 128
	}
	if cfg.Player.ReconnectTries == 0 {
		cfg.Player.ReconnectTries = 5
	}
	if cfg.Player.NetworkTimeout == 0 {
		cfg.Player.NetworkTimeout = 8000
	}
	if cfg.Recognition.VibraPath == "" {
		cfg.Recognition.VibraPath = "vibra"
	}
	if cfg.Recognition.IntervalSecs == 0 {
		cfg.Recognition.IntervalSecs = 45
	}
	if cfg.Recognition.TimeoutSecs == 0 {
		cfg.Recognition.TimeoutSecs = 12
	}
	if cfg.Recognition.SampleSecs == 0 {
		cfg.Recognition.SampleSecs = 12
	}
}

// Validate performs semantic validation.
func Validate(cfg Config) error {
	if cfg.Player.InitialVolume < 0 || cfg.Player.InitialVolume > 100 {
		return fmt.Errorf("player.initial_volume must be 0..100, got %d", cfg.Player.InitialVolume)
	}
	if cfg.Recognition.SampleSecs > cfg.Player.BufferSeconds {
		return fmt.Errorf("recognition.sample_secs (%d) must not exceed player.buffer_seconds (%d)",
			cfg.Recognition.SampleSecs, cfg.Player.BufferSeconds)
	}
	if cfg.Recognition.TimeoutSecs >= cfg.Recognition.IntervalSecs {
		return fmt.Errorf("recognition.timeout_secs (%d) must be below interval_secs (%d)",
			cfg.Recognition.TimeoutSecs, cfg.Recognition.IntervalSecs)
	}
	return nil
}
