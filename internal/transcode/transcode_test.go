package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/probe"
)

func testTranscoder() *Transcoder {
	return NewTranscoder(config.Default().Transcode, audio.DefaultFormat(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func brokenTranscoder() *Transcoder {
	cfg := config.Default().Transcode
	cfg.FFmpegPath = "/nonexistent/ffmpeg"
	return NewTranscoder(cfg, audio.DefaultFormat(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolveInputFormat(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		container string
		codec     string
		expected  string
	}{
		{"plain mp3", "mp3", "mp3", "mp3", "mp3"},
		{"ogg stays", "ogg", "ogg", "vorbis", "ogg"},
		{"matroska with webm container", "matroska", "matroska,webm", "vorbis", "webm"},
		{"matroska with opus codec", "matroska", "matroska", "opus", "webm"},
		{"plain matroska", "matroska", "matroska", "ac3", "matroska"},
		{"empty sniffs", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveInputFormat(tt.format, tt.container, tt.codec)
			if got != tt.expected {
				t.Errorf("resolveInputFormat(%q, %q, %q): expected %q, got %q",
					tt.format, tt.container, tt.codec, tt.expected, got)
			}
		})
	}
}

func TestInputFormatForProbedStream(t *testing.T) {
	if got := inputFormatFor(nil); got != "" {
		t.Errorf("Expected empty format for nil info, got %q", got)
	}

	info := &probe.FormatInfo{Format: "matroska", Container: "matroska,webm", Codec: "opus"}
	if got := inputFormatFor(info); got != "webm" {
		t.Errorf("Expected webm remap for probed matroska/opus, got %q", got)
	}
}

func TestBuildArgs(t *testing.T) {
	tc := testTranscoder()

	args := strings.Join(tc.buildArgs("webm"), " ")

	for _, want := range []string{
		"-f webm",
		"-i pipe:0",
		"-af loudnorm=I=-16:TP=-1.5:LRA=11",
		"-f s16le",
		"-acodec pcm_s16le",
		"-ar 48000",
		"-ac 2",
		"pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected args to contain %q, got %q", want, args)
		}
	}
}

func TestBuildArgsWithoutInputFormat(t *testing.T) {
	tc := testTranscoder()

	args := strings.Join(tc.buildArgs(""), " ")
	if strings.Contains(args, "-f webm") || strings.HasPrefix(args, "-f ") {
		t.Errorf("Expected no explicit input format, got %q", args)
	}

	// Output format is still explicit
	if !strings.Contains(args, "-f s16le") {
		t.Errorf("Expected s16le output format, got %q", args)
	}
}

func TestProcessBufferEmptyInput(t *testing.T) {
	_, err := testTranscoder().ProcessBuffer(context.Background(), nil, "", "")
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed for empty input, got %v", err)
	}
}

func TestProcessBufferSpawnFailure(t *testing.T) {
	tc := brokenTranscoder()

	_, err := tc.ProcessBuffer(context.Background(), []byte{1, 2, 3, 4}, "mp3", "mp3")
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed for missing binary, got %v", err)
	}

	stats := tc.GetStats()
	if stats.Started != 1 || stats.Failed != 1 || stats.Succeeded != 0 {
		t.Errorf("Expected stats {1 0 1}, got %+v", stats)
	}
}

func TestProcessStreamNilReader(t *testing.T) {
	_, err := testTranscoder().ProcessStream(context.Background(), StreamRequest{})
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed for nil reader, got %v", err)
	}
}

func TestProcessStreamSpawnFailure(t *testing.T) {
	tc := brokenTranscoder()

	_, err := tc.ProcessStream(context.Background(), StreamRequest{Reader: strings.NewReader("data")})
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed for missing binary, got %v", err)
	}

	if stats := tc.GetStats(); stats.Failed != 1 {
		t.Errorf("Expected 1 failure recorded, got %+v", stats)
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	cfg := config.Default().Transcode
	cfg.MaxConcurrent = 1
	tc := NewTranscoder(cfg, audio.DefaultFormat(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Occupy the only slot
	if err := tc.acquire(context.Background()); err != nil {
		t.Fatalf("First acquire should succeed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tc.acquire(ctx); !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed on cancelled acquire, got %v", err)
	}

	tc.release()
}
