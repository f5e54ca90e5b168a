package mixer

import (
	"io"
	"sync"
)

// StreamInfo describes one stream registration. The mixer owns the stream
// exclusively once registered; callers interact with it only through
// RemoveStream and the queries.
type StreamInfo struct {
	ID         string
	Source     io.Reader
	Volume     float64 // clamped to [0,1]
	OnComplete func()  // fired exactly once, on natural drain or forced removal
}

// stream is the mixer-internal state for one registered source
type stream struct {
	id         string
	source     io.Reader
	volume     float64
	onComplete func()

	mu      sync.Mutex
	buf     []byte
	ended   bool // source reached EOF
	removed bool // unregistered; reader must stop appending

	completeOnce sync.Once
}

// append adds arriving source data to the stream buffer. Data arriving
// after removal is discarded.
func (s *stream) append(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return
	}
	s.buf = append(s.buf, data...)
}

// markEnded records that the source has no more data
func (s *stream) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// extractFrame consumes up to frameSize buffered bytes. Anything short of a
// full frame drains the buffer; the caller pads with silence.
func (s *stream) extractFrame(frameSize int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) >= frameSize {
		frame := s.buf[:frameSize]
		s.buf = s.buf[frameSize:]
		return frame
	}

	frame := s.buf
	s.buf = nil
	return frame
}

// drained reports whether a naturally-ended stream may be released: the
// source has ended and fewer bytes than one interleaved sample remain
func (s *stream) drained(sampleFrameBytes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended && len(s.buf) < sampleFrameBytes
}

// buffered returns the current buffer length in bytes
func (s *stream) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// markRemoved flags the stream as unregistered
func (s *stream) markRemoved() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
}

// complete fires the completion callback. Safe to call from both the
// natural-drain and forced-removal paths; the callback runs exactly once.
func (s *stream) complete() {
	s.completeOnce.Do(func() {
		if s.onComplete != nil {
			s.onComplete()
		}
	})
}

// clampVolume bounds a volume to [0,1]
func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
