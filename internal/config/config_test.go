package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration should validate, got %v", err)
	}

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected default sample rate 48000, got %d", cfg.Audio.SampleRate)
	}

	if cfg.Audio.Channels != 2 {
		t.Errorf("Expected default channels 2, got %d", cfg.Audio.Channels)
	}

	if cfg.Mixer.MaxStreams != 8 {
		t.Errorf("Expected default max streams 8, got %d", cfg.Mixer.MaxStreams)
	}

	if cfg.Audio.GetFrameDuration() != 20*time.Millisecond {
		t.Errorf("Expected default frame duration 20ms, got %v", cfg.Audio.GetFrameDuration())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 100 },
			expectError: true,
			errorMsg:    "sample_rate",
		},
		{
			name:        "invalid channel count",
			mutate:      func(c *Config) { c.Audio.Channels = 3 },
			expectError: true,
			errorMsg:    "channels",
		},
		{
			name:        "frame duration too long",
			mutate:      func(c *Config) { c.Audio.FrameDurationMS = 500 },
			expectError: true,
			errorMsg:    "frame_duration_ms",
		},
		{
			name:        "zero max streams",
			mutate:      func(c *Config) { c.Mixer.MaxStreams = 0 },
			expectError: true,
			errorMsg:    "max_streams",
		},
		{
			name:        "unknown transport",
			mutate:      func(c *Config) { c.Player.Transport = "tape-deck" },
			expectError: true,
			errorMsg:    "transport",
		},
		{
			name:        "negative restart delay",
			mutate:      func(c *Config) { c.Player.RestartDelayMS = -5 },
			expectError: true,
			errorMsg:    "restart_delay_ms",
		},
		{
			name:        "empty ffprobe path",
			mutate:      func(c *Config) { c.Probe.FFprobePath = "" },
			expectError: true,
			errorMsg:    "ffprobe_path",
		},
		{
			name:        "tiny spool cap",
			mutate:      func(c *Config) { c.Probe.MaxSpoolBytes = 100 },
			expectError: true,
			errorMsg:    "max_spool_bytes",
		},
		{
			name:        "empty ffmpeg path",
			mutate:      func(c *Config) { c.Transcode.FFmpegPath = "" },
			expectError: true,
			errorMsg:    "ffmpeg_path",
		},
		{
			name:        "positive loudnorm target",
			mutate:      func(c *Config) { c.Transcode.LoudnormI = 5 },
			expectError: true,
			errorMsg:    "loudnorm_i",
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port",
		},
		{
			name:        "http disabled skips port check",
			mutate:      func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected validation error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `
audio:
  sample_rate: 44100
mixer:
  max_streams: 4
player:
  transport: speaker
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected overridden sample rate 44100, got %d", cfg.Audio.SampleRate)
	}

	if cfg.Mixer.MaxStreams != 4 {
		t.Errorf("Expected overridden max streams 4, got %d", cfg.Mixer.MaxStreams)
	}

	if cfg.Player.Transport != "speaker" {
		t.Errorf("Expected overridden transport 'speaker', got %q", cfg.Player.Transport)
	}

	// Untouched sections keep their defaults
	if cfg.Transcode.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %q", cfg.Transcode.FFmpegPath)
	}

	if cfg.Probe.TimeoutSeconds != 15 {
		t.Errorf("Expected default probe timeout, got %d", cfg.Probe.TimeoutSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("audio: [not: a: mapping"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	content := `
mixer:
  max_streams: 0
`
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for zero max_streams")
	}
}
