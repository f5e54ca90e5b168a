package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
)

// FormatInfo contains the structured metadata ffprobe reports for an input.
// It is required before any source enters the conversion pipeline.
type FormatInfo struct {
	Format     string        `json:"format"`
	Container  string        `json:"container"`
	Codec      string        `json:"codec"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitRate    int           `json:"bit_rate,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	BitDepth   int           `json:"bit_depth,omitempty"`
}

// Detector probes inputs with ffprobe
type Detector struct {
	cfg    config.ProbeConfig
	logger *slog.Logger
}

// NewDetector creates a format detector
func NewDetector(cfg config.ProbeConfig, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger,
	}
}

// DetectFile probes a local file
func (d *Detector) DetectFile(ctx context.Context, path string) (*FormatInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if stat.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptedAudio, path)
	}

	return d.probe(ctx, path, false)
}

// DetectURL probes a remote URL. ffprobe performs the fetch itself, so only
// the leading part of the resource is downloaded.
func (d *Detector) DetectURL(ctx context.Context, url string) (*FormatInfo, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported url scheme in %q", url)
	}

	return d.probe(ctx, url, false)
}

// DetectStream spools a stream to a bounded temporary file and probes it.
// ffprobe requires random-access input, so streams cannot be piped directly.
func (d *Detector) DetectStream(ctx context.Context, r io.Reader) (*FormatInfo, error) {
	path, cleanup, err := d.spool(r)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return d.DetectFile(ctx, path)
}

// DetectFast probes with bounded analysis size and duration. Quicker than a
// full probe, at the cost of bitrate/duration completeness.
func (d *Detector) DetectFast(ctx context.Context, input string) (*FormatInfo, error) {
	return d.probe(ctx, input, true)
}

// spool copies a stream to a temporary file, aborting once the configured
// size cap is exceeded
func (d *Detector) spool(r io.Reader) (string, func(), error) {
	tmp, err := os.CreateTemp("", "wingtech-probe-*.spool")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	written, err := io.Copy(tmp, io.LimitReader(r, d.cfg.MaxSpoolBytes+1))
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to spool stream: %w", err)
	}

	if written > d.cfg.MaxSpoolBytes {
		cleanup()
		return "", nil, fmt.Errorf("%w: cap is %d bytes", ErrSpoolLimitExceeded, d.cfg.MaxSpoolBytes)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to flush spool file: %w", err)
	}

	return tmp.Name(), cleanup, nil
}

// probe runs ffprobe against the input and parses its JSON output
func (d *Detector) probe(ctx context.Context, input string, fast bool) (*FormatInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.GetTimeout())
	defer cancel()

	args := buildProbeArgs(d.cfg, input, fast)

	cmd := exec.CommandContext(ctx, d.cfg.FFprobePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w (stderr: %s)",
			input, err, strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbeOutput(out)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Probed input",
		slog.String("input", input),
		slog.Bool("fast", fast),
		slog.String("format", info.Format),
		slog.String("codec", info.Codec),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Duration("probe_time", time.Since(start)),
	)

	return info, nil
}

// buildProbeArgs assembles the ffprobe command line
func buildProbeArgs(cfg config.ProbeConfig, input string, fast bool) []string {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}

	if fast {
		args = append(args,
			"-probesize", strconv.FormatInt(cfg.FastProbeBytes, 10),
			"-analyzeduration", strconv.FormatInt(int64(cfg.FastMaxDuration*1e6), 10),
		)
	}

	return append(args, "-i", input)
}

// ffprobe JSON shapes. Numeric fields arrive as strings.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitRate       string `json:"bit_rate"`
	BitsPerSample int    `json:"bits_per_sample"`
}

// parseProbeOutput validates ffprobe's JSON and extracts the audio stream
// metadata
func parseProbeOutput(data []byte) (*FormatInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: unparseable ffprobe output: %v", ErrCorruptedAudio, err)
	}

	var audio *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "audio" {
			audio = &out.Streams[i]
			break
		}
	}

	if audio == nil {
		return nil, ErrNoAudioStream
	}

	if out.Format.FormatName == "" {
		return nil, fmt.Errorf("%w: missing format name", ErrCorruptedAudio)
	}

	sampleRate, err := strconv.Atoi(audio.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %q", ErrCorruptedAudio, audio.SampleRate)
	}

	if audio.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrCorruptedAudio, audio.Channels)
	}

	format, container := splitFormatName(out.Format.FormatName)

	if isUnknown(audio.CodecName) || isUnknown(format) {
		return nil, fmt.Errorf("%w: format %q codec %q", ErrUnsupportedFormat, format, audio.CodecName)
	}

	info := &FormatInfo{
		Format:     format,
		Container:  container,
		Codec:      audio.CodecName,
		SampleRate: sampleRate,
		Channels:   audio.Channels,
		BitDepth:   audio.BitsPerSample,
	}

	if audio.BitRate != "" {
		if br, err := strconv.Atoi(audio.BitRate); err == nil {
			info.BitRate = br
		}
	}
	if info.BitRate == 0 && out.Format.BitRate != "" {
		if br, err := strconv.Atoi(out.Format.BitRate); err == nil {
			info.BitRate = br
		}
	}

	if out.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && secs > 0 {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}

	return info, nil
}

// splitFormatName separates ffprobe's comma-joined demuxer name into the
// primary format and the full container list. Generic demuxers report
// several names at once, e.g. "matroska,webm".
func splitFormatName(name string) (format, container string) {
	parts := strings.Split(name, ",")
	return parts[0], name
}

// isUnknown reports whether a probe field resolved to an unknown sentinel
func isUnknown(v string) bool {
	switch strings.ToLower(v) {
	case "", "unknown", "none":
		return true
	}
	return false
}
