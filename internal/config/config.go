package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Mixer     MixerConfig     `yaml:"mixer"`
	Player    PlayerConfig    `yaml:"player"`
	Probe     ProbeConfig     `yaml:"probe"`
	Transcode TranscodeConfig `yaml:"transcode"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AudioConfig describes the canonical PCM format all sources are converted to
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`       // Hz
	Channels        int `yaml:"channels"`          // 1 or 2
	FrameDurationMS int `yaml:"frame_duration_ms"` // mixer tick cadence
}

// MixerConfig contains mixing parameters
type MixerConfig struct {
	MaxStreams int `yaml:"max_streams"`
}

// PlayerConfig contains playback parameters
type PlayerConfig struct {
	Transport      string `yaml:"transport"`        // "speaker" or "null"
	RestartDelayMS int    `yaml:"restart_delay_ms"` // delay before re-attaching after a transport idle
	CapturePath    string `yaml:"capture_path"`     // optional WAV capture of the mixed output
}

// ProbeConfig contains format detection parameters
type ProbeConfig struct {
	FFprobePath     string  `yaml:"ffprobe_path"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	MaxSpoolBytes   int64   `yaml:"max_spool_bytes"`   // cap when spooling streams to disk
	FastProbeBytes  int64   `yaml:"fast_probe_bytes"`  // analyzed bytes in fast mode
	FastMaxDuration float64 `yaml:"fast_max_duration"` // analyzed seconds in fast mode
}

// TranscodeConfig contains conversion parameters
type TranscodeConfig struct {
	FFmpegPath     string  `yaml:"ffmpeg_path"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	JitterBytes    int     `yaml:"jitter_bytes"`     // streaming-mode ring buffer size
	LoudnormI      float64 `yaml:"loudnorm_i"`       // integrated loudness target, LUFS
	LoudnormTP     float64 `yaml:"loudnorm_tp"`      // true peak ceiling, dBTP
	LoudnormLRA    float64 `yaml:"loudnorm_lra"`     // loudness range target, LU
	TimeoutSeconds int     `yaml:"timeout_seconds"`  // buffer-mode conversion deadline
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration the engine runs with when no file
// overrides are given
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:      48000,
			Channels:        2,
			FrameDurationMS: 20,
		},
		Mixer: MixerConfig{
			MaxStreams: 8,
		},
		Player: PlayerConfig{
			Transport:      "null",
			RestartDelayMS: 100,
		},
		Probe: ProbeConfig{
			FFprobePath:     "ffprobe",
			TimeoutSeconds:  15,
			MaxSpoolBytes:   64 << 20, // 64 MiB
			FastProbeBytes:  1 << 20,  // 1 MiB
			FastMaxDuration: 5,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:     "ffmpeg",
			MaxConcurrent:  4,
			JitterBytes:    1 << 20, // ~5.4s of canonical PCM
			LoudnormI:      -16,
			LoudnormTP:     -1.5,
			LoudnormLRA:    11,
			TimeoutSeconds: 60,
		},
		HTTP: HTTPConfig{
			Port:    8085,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the
// result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Mixer.Validate(); err != nil {
		return fmt.Errorf("mixer config: %w", err)
	}

	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player config: %w", err)
	}

	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe config: %w", err)
	}

	if err := c.Transcode.Validate(); err != nil {
		return fmt.Errorf("transcode config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", a.Channels)
	}

	if a.FrameDurationMS < 5 || a.FrameDurationMS > 100 {
		return fmt.Errorf("frame_duration_ms must be between 5 and 100, got %d", a.FrameDurationMS)
	}

	return nil
}

// Validate validates mixer configuration
func (m *MixerConfig) Validate() error {
	if m.MaxStreams < 1 {
		return fmt.Errorf("max_streams must be at least 1, got %d", m.MaxStreams)
	}

	return nil
}

// Validate validates player configuration
func (p *PlayerConfig) Validate() error {
	validTransports := map[string]bool{"speaker": true, "null": true}
	if !validTransports[p.Transport] {
		return fmt.Errorf("transport must be 'speaker' or 'null', got '%s'", p.Transport)
	}

	if p.RestartDelayMS < 0 {
		return fmt.Errorf("restart_delay_ms cannot be negative, got %d", p.RestartDelayMS)
	}

	return nil
}

// Validate validates probe configuration
func (p *ProbeConfig) Validate() error {
	if p.FFprobePath == "" {
		return fmt.Errorf("ffprobe_path cannot be empty")
	}

	if p.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1, got %d", p.TimeoutSeconds)
	}

	if p.MaxSpoolBytes < 1024 {
		return fmt.Errorf("max_spool_bytes must be at least 1024, got %d", p.MaxSpoolBytes)
	}

	if p.FastProbeBytes < 1024 {
		return fmt.Errorf("fast_probe_bytes must be at least 1024, got %d", p.FastProbeBytes)
	}

	if p.FastMaxDuration <= 0 {
		return fmt.Errorf("fast_max_duration must be positive, got %f", p.FastMaxDuration)
	}

	return nil
}

// Validate validates transcode configuration
func (t *TranscodeConfig) Validate() error {
	if t.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.JitterBytes < 4096 {
		return fmt.Errorf("jitter_bytes must be at least 4096, got %d", t.JitterBytes)
	}

	if t.LoudnormI > 0 {
		return fmt.Errorf("loudnorm_i is a LUFS target and must not be positive, got %f", t.LoudnormI)
	}

	if t.LoudnormTP > 0 {
		return fmt.Errorf("loudnorm_tp is a dBTP ceiling and must not be positive, got %f", t.LoudnormTP)
	}

	if t.LoudnormLRA <= 0 {
		return fmt.Errorf("loudnorm_lra must be positive, got %f", t.LoudnormLRA)
	}

	if t.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1, got %d", t.TimeoutSeconds)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
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

	return nil
}

// GetFrameDuration returns the mixer frame duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMS) * time.Millisecond
}

// GetRestartDelay returns the transport restart delay as a time.Duration
func (p *PlayerConfig) GetRestartDelay() time.Duration {
	return time.Duration(p.RestartDelayMS) * time.Millisecond
}

// GetTimeout returns the probe timeout as a time.Duration
func (p *ProbeConfig) GetTimeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// GetTimeout returns the buffer-mode conversion deadline as a time.Duration
func (t *TranscodeConfig) GetTimeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}
