package player

import (
	"fmt"
	"sync"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
)

// State describes the transport's playback state
type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateAutoPaused
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateAutoPaused:
		return "auto_paused"
	default:
		return "unknown"
	}
}

// Transport delivers mixed PCM frames to an output device. Open attaches
// the transport for a fixed format; WriteFrame pushes one frame. AutoPause
// marks an engine-initiated pause when nothing is playing, distinct from an
// explicit Pause, so Resume semantics can differ between the two.
type Transport interface {
	Open(format audio.Format) error
	WriteFrame(pcm []byte) error
	Pause()
	Resume()
	AutoPause()
	State() State
	Close() error
}

// NullTransport discards frames while tracking state and counts. It stands
// in for a real output device in tests and headless deployments.
type NullTransport struct {
	mu     sync.Mutex
	state  State
	frames uint64
}

// NewNullTransport creates an unattached null transport
func NewNullTransport() *NullTransport {
	return &NullTransport{state: StateIdle}
}

// Open attaches the transport
func (t *NullTransport) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid transport format: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateBuffering
	return nil
}

// WriteFrame discards one frame and counts it
func (t *NullTransport) WriteFrame(pcm []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle {
		return fmt.Errorf("transport not open")
	}
	if t.state == StateBuffering {
		t.state = StatePlaying
	}

	t.frames++
	return nil
}

// Pause marks an explicit pause
func (t *NullTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePlaying || t.state == StateAutoPaused {
		t.state = StatePaused
	}
}

// Resume returns to playing from either pause flavor
func (t *NullTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePaused || t.state == StateAutoPaused {
		t.state = StatePlaying
	}
}

// AutoPause marks an engine-initiated pause; it never overrides an explicit
// one
func (t *NullTransport) AutoPause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePlaying || t.state == StateBuffering {
		t.state = StateAutoPaused
	}
}

// State returns the current transport state
func (t *NullTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// FramesWritten returns the number of frames pushed since Open
func (t *NullTransport) FramesWritten() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Close detaches the transport
func (t *NullTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateIdle
	return nil
}
