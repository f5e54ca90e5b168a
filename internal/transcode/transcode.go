package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/probe"
)

// Transcoder converts audio inputs to canonical PCM via ffmpeg. Concurrent
// conversions are bounded by a semaphore; each subprocess is owned by the
// call that spawned it.
type Transcoder struct {
	cfg       config.TranscodeConfig
	format    audio.Format
	logger    *slog.Logger
	semaphore chan struct{}

	// Statistics
	started   uint64
	succeeded uint64
	failed    uint64
	mu        sync.RWMutex
}

// Stats represents transcoder statistics for monitoring
type Stats struct {
	Started   uint64 `json:"started"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// NewTranscoder creates a transcoder emitting PCM in the given format
func NewTranscoder(cfg config.TranscodeConfig, format audio.Format, logger *slog.Logger) *Transcoder {
	return &Transcoder{
		cfg:       cfg,
		format:    format,
		logger:    logger,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// ProcessBuffer converts a whole in-memory input to canonical PCM. The
// optional format and container hints come from a prior probe; empty values
// let ffmpeg sniff the input itself.
func (t *Transcoder) ProcessBuffer(ctx context.Context, data []byte, format, container string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input buffer", ErrConversionFailed)
	}

	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.GetTimeout())
	defer cancel()

	inFormat := resolveInputFormat(format, container, "")
	args := t.buildArgs(inFormat)

	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.recordStart()
	start := time.Now()

	if err := cmd.Run(); err != nil {
		t.recordFailure()
		return nil, fmt.Errorf("%w: %v (stderr: %s)", ErrConversionFailed, err, strings.TrimSpace(stderr.String()))
	}

	t.recordSuccess()
	t.logger.Debug("Converted buffer",
		slog.String("input_format", inFormat),
		slog.Int("input_bytes", len(data)),
		slog.Int("output_bytes", stdout.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)

	return stdout.Bytes(), nil
}

// buildArgs assembles the ffmpeg command line for a pipe-to-pipe conversion
// to canonical PCM with loudness normalization
func (t *Transcoder) buildArgs(inputFormat string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if inputFormat != "" {
		args = append(args, "-f", inputFormat)
	}

	args = append(args,
		"-i", "pipe:0",
		"-vn",
		"-af", fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g", t.cfg.LoudnormI, t.cfg.LoudnormTP, t.cfg.LoudnormLRA),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(t.format.SampleRate),
		"-ac", strconv.Itoa(t.format.Channels),
		"pipe:1",
	)

	return args
}

// resolveInputFormat picks the explicit input format handed to ffmpeg.
// Generic probes report webm/opus inputs as the matroska demuxer; those are
// remapped to "webm" so ffmpeg does not reject the stream.
func resolveInputFormat(format, container, codec string) string {
	if format != "matroska" {
		return format
	}

	if strings.Contains(container, "webm") || codec == "opus" {
		return "webm"
	}

	return format
}

// acquire claims a conversion slot, honoring context cancellation
func (t *Transcoder) acquire(ctx context.Context) error {
	select {
	case t.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrConversionFailed, ctx.Err())
	}
}

// release frees a conversion slot
func (t *Transcoder) release() {
	<-t.semaphore
}

// GetStats returns current transcoder statistics
func (t *Transcoder) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		Started:   t.started,
		Succeeded: t.succeeded,
		Failed:    t.failed,
	}
}

func (t *Transcoder) recordStart() {
	t.mu.Lock()
	t.started++
	t.mu.Unlock()
}

func (t *Transcoder) recordSuccess() {
	t.mu.Lock()
	t.succeeded++
	t.mu.Unlock()
}

func (t *Transcoder) recordFailure() {
	t.mu.Lock()
	t.failed++
	t.mu.Unlock()
}

// inputFormatFor resolves the explicit ffmpeg input format for a probed
// stream
func inputFormatFor(info *probe.FormatInfo) string {
	if info == nil {
		return ""
	}
	return resolveInputFormat(info.Format, info.Container, info.Codec)
}
