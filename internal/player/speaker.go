package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
)

// speakerBufferSize is the device-side latency the speaker is initialized
// with
const speakerBufferSize = 100 * time.Millisecond

// maxQueuedBytes caps the frame queue at roughly one second of canonical
// PCM so a stalled device cannot grow it without bound
const maxQueuedBytes = 48000 * 2 * 2

// SpeakerTransport plays mixed frames on the local audio device. Frames are
// queued and pulled by the device callback; an empty queue yields silence
// so the device pipeline never stalls.
type SpeakerTransport struct {
	mu       sync.Mutex
	state    State
	format   audio.Format
	streamer *frameStreamer
	ctrl     *beep.Ctrl
}

// NewSpeakerTransport creates an unattached speaker transport
func NewSpeakerTransport() *SpeakerTransport {
	return &SpeakerTransport{state: StateIdle}
}

// Open initializes the audio device for the given format and starts the
// pull pipeline
func (t *SpeakerTransport) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid transport format: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sampleRate := beep.SampleRate(format.SampleRate)
	if err := speaker.Init(sampleRate, sampleRate.N(speakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	t.format = format
	t.streamer = &frameStreamer{channels: format.Channels}
	t.ctrl = &beep.Ctrl{Streamer: t.streamer}
	speaker.Play(t.ctrl)

	t.state = StateBuffering
	return nil
}

// WriteFrame queues one frame for the device. Frames past the queue cap are
// dropped oldest-first.
func (t *SpeakerTransport) WriteFrame(pcm []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle {
		return fmt.Errorf("transport not open")
	}
	if t.state == StateBuffering {
		t.state = StatePlaying
	}

	t.streamer.push(pcm)
	return nil
}

// Pause marks an explicit pause and halts the device pull
func (t *SpeakerTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePlaying && t.state != StateAutoPaused {
		return
	}

	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
	t.state = StatePaused
}

// Resume returns to playing from either pause flavor
func (t *SpeakerTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePaused && t.state != StateAutoPaused {
		return
	}

	speaker.Lock()
	t.ctrl.Paused = false
	speaker.Unlock()
	t.state = StatePlaying
}

// AutoPause halts the device pull when nothing is playing; it never
// overrides an explicit pause
func (t *SpeakerTransport) AutoPause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePlaying && t.state != StateBuffering {
		return
	}

	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
	t.state = StateAutoPaused
}

// State returns the current transport state
func (t *SpeakerTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close stops the device pull and detaches
func (t *SpeakerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle {
		return nil
	}

	speaker.Clear()
	t.streamer = nil
	t.ctrl = nil
	t.state = StateIdle
	return nil
}

// frameStreamer adapts queued s16le frames to the device's float64 sample
// pull. The device callback drains the queue under its own lock; when the
// queue runs dry the remaining samples are silence, never a stall.
type frameStreamer struct {
	mu       sync.Mutex
	queue    []byte
	channels int
}

// push appends a frame, dropping the oldest data past the cap
func (f *frameStreamer) push(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queue = append(f.queue, pcm...)
	if len(f.queue) > maxQueuedBytes {
		f.queue = f.queue[len(f.queue)-maxQueuedBytes:]
	}
}

func (f *frameStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bytesPerFrame := f.channels * 2
	filled := 0

	for i := range samples {
		if len(f.queue) < bytesPerFrame {
			break
		}

		left := int16(f.queue[0]) | int16(f.queue[1])<<8
		if f.channels == 2 {
			right := int16(f.queue[2]) | int16(f.queue[3])<<8
			samples[i][0] = float64(left) / 32768.0
			samples[i][1] = float64(right) / 32768.0
		} else {
			v := float64(left) / 32768.0
			samples[i][0] = v
			samples[i][1] = v
		}

		f.queue = f.queue[bytesPerFrame:]
		filled = i + 1
	}

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	return len(samples), true
}

func (f *frameStreamer) Err() error {
	return nil
}
