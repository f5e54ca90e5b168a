package audio

import (
	"fmt"
	"os"
	"sync"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Capture writes mixed output frames to a WAV file for inspection or
// archival. Frames are appended as they are emitted; Close finalizes the
// RIFF header.
type Capture struct {
	file   *os.File
	enc    *wav.Encoder
	format Format

	frames uint64
	closed bool
	mu     sync.Mutex
}

// NewCapture creates a WAV file at path and prepares it for canonical PCM
// frames in the given format
func NewCapture(path string, format Format) (*Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file %s: %w", path, err)
	}

	return &Capture{
		file:   file,
		enc:    wav.NewEncoder(file, format.SampleRate, 16, format.Channels, 1),
		format: format,
	}, nil
}

// WriteFrame appends one PCM frame to the capture file
func (c *Capture) WriteFrame(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("capture already closed")
	}

	samples := DecodeSamples(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &gaudio.IntBuffer{
		Data: data,
		Format: &gaudio.Format{
			NumChannels: c.format.Channels,
			SampleRate:  c.format.SampleRate,
		},
		SourceBitDepth: 16,
	}

	if err := c.enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write capture frame: %w", err)
	}

	c.frames++
	return nil
}

// Frames returns the number of frames written so far
func (c *Capture) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Close finalizes the WAV header and closes the file
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.enc.Close(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to finalize capture file: %w", err)
	}

	return c.file.Close()
}
