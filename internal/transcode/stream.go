package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/probe"
)

// StreamRequest describes one streaming conversion
type StreamRequest struct {
	Reader io.Reader
	Info   *probe.FormatInfo
}

// ProcessStream converts a stream to canonical PCM. The returned reader
// yields PCM as ffmpeg produces it, buffered through a ring buffer sized to
// absorb jitter between transcoder throughput and the mixer's 20ms drain
// rate. Closing the reader kills the subprocess and releases its slot.
func (t *Transcoder) ProcessStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	if req.Reader == nil {
		return nil, fmt.Errorf("%w: nil input stream", ErrConversionFailed)
	}

	if err := t.acquire(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	inFormat := inputFormatFor(req.Info)
	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath, t.buildArgs(inFormat)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		t.release()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrConversionFailed, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		t.release()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrConversionFailed, err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.recordStart()
	if err := cmd.Start(); err != nil {
		cancel()
		t.release()
		t.recordFailure()
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	jitter := ringbuffer.New(t.cfg.JitterBytes).SetBlocking(true)

	// Feed the subprocess from the source stream
	go func() {
		if _, err := io.Copy(stdin, req.Reader); err != nil && ctx.Err() == nil {
			t.logger.Debug("Source stream ended with error", slog.String("error", err.Error()))
		}
		stdin.Close()
	}()

	// Drain subprocess output into the jitter buffer, then reap it
	go func() {
		defer t.release()

		_, copyErr := io.Copy(jitter, stdout)
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			// Consumer cancelled or closed; not a conversion failure
			jitter.CloseWithError(ctx.Err())
		case waitErr != nil:
			t.recordFailure()
			jitter.CloseWithError(fmt.Errorf("%w: %v (stderr: %s)",
				ErrConversionFailed, waitErr, strings.TrimSpace(stderr.String())))
		case copyErr != nil:
			t.recordFailure()
			jitter.CloseWithError(fmt.Errorf("%w: %v", ErrConversionFailed, copyErr))
		default:
			t.recordSuccess()
			jitter.CloseWriter()
		}
	}()

	t.logger.Debug("Started streaming conversion",
		slog.String("input_format", inFormat),
		slog.Int("jitter_bytes", t.cfg.JitterBytes),
	)

	return &pcmStream{jitter: jitter, cancel: cancel}, nil
}

// pcmStream is the consumer side of a streaming conversion
type pcmStream struct {
	jitter    *ringbuffer.RingBuffer
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Read yields converted PCM, blocking until the transcoder produces data or
// the stream ends
func (s *pcmStream) Read(p []byte) (int, error) {
	return s.jitter.Read(p)
}

// Close aborts the conversion: the subprocess is killed and any blocked
// readers are released
func (s *pcmStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.jitter.CloseWithError(io.ErrClosedPipe)
	})
	return nil
}
