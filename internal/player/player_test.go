package player

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/mixer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlayerConfig() config.PlayerConfig {
	return config.PlayerConfig{
		Transport:      "null",
		RestartDelayMS: 10,
	}
}

// newTestPlayer builds a started player on a null transport. Probe and
// transcode stay nil; these tests feed canonical PCM directly.
func newTestPlayer(t *testing.T, maxStreams int) (*Player, *NullTransport) {
	t.Helper()

	format := audio.DefaultFormat()
	mix := mixer.New(format, maxStreams, testLogger(), nil)
	transport := NewNullTransport()

	p, err := New(testPlayerConfig(), format, mix, transport, nil, nil, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start player: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	return p, transport
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayPCMLifecycle(t *testing.T) {
	p, transport := newTestPlayer(t, 8)
	format := audio.DefaultFormat()

	id, err := p.PlayPCM(bytes.NewReader(make([]byte, format.FrameSize()*2)), "test-clip", 1.0)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a non-empty playback id")
	}

	info, ok := p.GetPlayback(id)
	if !ok {
		t.Fatal("Expected playback to be tracked")
	}
	if info.Name != "test-clip" || info.Volume != 1.0 {
		t.Errorf("Unexpected playback info: %+v", info)
	}

	waitFor(t, "playback completion", func() bool {
		return p.GetActiveCount() == 0
	})
	waitFor(t, "frames reaching the transport", func() bool {
		return transport.FramesWritten() >= 2
	})
}

func TestAutoPauseAfterLastPlayback(t *testing.T) {
	p, transport := newTestPlayer(t, 8)
	format := audio.DefaultFormat()

	_, err := p.PlayPCM(bytes.NewReader(make([]byte, format.FrameSize())), "short", 1.0)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}

	waitFor(t, "auto-pause after completion", func() bool {
		return transport.State() == StateAutoPaused
	})

	// The next playback must wake the transport
	pr, pw := io.Pipe()
	defer pw.Close()
	id, err := p.PlayPCM(pr, "next", 1.0)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	if state := transport.State(); state == StateAutoPaused {
		t.Errorf("Expected new playback to lift the auto-pause, state is %s", state)
	}
	p.Stop(id)
}

func TestExplicitPauseSurvivesNewPlayback(t *testing.T) {
	p, transport := newTestPlayer(t, 8)

	pr1, pw1 := io.Pipe()
	defer pw1.Close()
	if _, err := p.PlayPCM(pr1, "first", 1.0); err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	waitFor(t, "transport playing", func() bool {
		return transport.State() == StatePlaying
	})

	p.Pause()
	if state := transport.State(); state != StatePaused {
		t.Fatalf("Expected paused transport, got %s", state)
	}

	pr2, pw2 := io.Pipe()
	defer pw2.Close()
	if _, err := p.PlayPCM(pr2, "second", 1.0); err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	if state := transport.State(); state != StatePaused {
		t.Errorf("Expected explicit pause to survive a new playback, got %s", state)
	}

	p.Resume()
	if state := transport.State(); state != StatePlaying {
		t.Errorf("Expected playing after resume, got %s", state)
	}
}

func TestStopPlayback(t *testing.T) {
	p, _ := newTestPlayer(t, 8)

	pr, pw := io.Pipe()
	defer pw.Close()
	id, err := p.PlayPCM(pr, "endless", 1.0)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}

	if !p.Stop(id) {
		t.Error("Expected Stop of active playback to succeed")
	}
	waitFor(t, "playback removal", func() bool {
		return p.GetActiveCount() == 0
	})

	if p.Stop(id) {
		t.Error("Expected Stop of finished playback to report false")
	}
	if p.Stop("not-a-real-id") {
		t.Error("Expected Stop of unknown id to report false")
	}
}

func TestStopAll(t *testing.T) {
	p, _ := newTestPlayer(t, 8)

	for i := 0; i < 3; i++ {
		pr, pw := io.Pipe()
		defer pw.Close()
		if _, err := p.PlayPCM(pr, "endless", 1.0); err != nil {
			t.Fatalf("PlayPCM failed: %v", err)
		}
	}

	if stopped := p.StopAll(); stopped != 3 {
		t.Errorf("Expected StopAll to stop 3 playbacks, got %d", stopped)
	}
	if count := p.GetActiveCount(); count != 0 {
		t.Errorf("Expected 0 active playbacks, got %d", count)
	}
}

func TestIndependentPlaybacks(t *testing.T) {
	p, _ := newTestPlayer(t, 8)

	pr1, pw1 := io.Pipe()
	defer pw1.Close()
	pr2, pw2 := io.Pipe()
	defer pw2.Close()

	id1, err := p.PlayPCM(pr1, "a", 1.0)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	id2, err := p.PlayPCM(pr2, "b", 0.5)
	if err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}

	p.Stop(id1)
	waitFor(t, "first playback removal", func() bool {
		return p.GetActiveCount() == 1
	})

	if _, ok := p.GetPlayback(id2); !ok {
		t.Error("Expected second playback to survive stopping the first")
	}
}

func TestMixerRejectionSurfaces(t *testing.T) {
	p, _ := newTestPlayer(t, 1)

	pr, pw := io.Pipe()
	defer pw.Close()
	if _, err := p.PlayPCM(pr, "occupant", 1.0); err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}

	pr2, pw2 := io.Pipe()
	defer pw2.Close()
	if _, err := p.PlayPCM(pr2, "rejected", 1.0); err == nil {
		t.Error("Expected playback past mixer capacity to fail")
	}
	if count := p.GetActiveCount(); count != 1 {
		t.Errorf("Expected 1 tracked playback after rejection, got %d", count)
	}
}

func TestCaptureWritesFile(t *testing.T) {
	format := audio.DefaultFormat()
	mix := mixer.New(format, 8, testLogger(), nil)
	transport := NewNullTransport()

	cfg := testPlayerConfig()
	cfg.CapturePath = filepath.Join(t.TempDir(), "mix.wav")

	p, err := New(cfg, format, mix, transport, nil, nil, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start player: %v", err)
	}

	if _, err := p.PlayPCM(bytes.NewReader(make([]byte, format.FrameSize()*3)), "captured", 1.0); err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}
	waitFor(t, "playback completion", func() bool {
		return p.GetActiveCount() == 0
	})
	waitFor(t, "capture frames", func() bool {
		return p.capture.Frames() >= 3
	})

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNullTransportStateMachine(t *testing.T) {
	tr := NewNullTransport()

	if state := tr.State(); state != StateIdle {
		t.Fatalf("Expected idle before open, got %s", state)
	}
	if err := tr.WriteFrame(nil); err == nil {
		t.Error("Expected write before open to fail")
	}

	if err := tr.Open(audio.DefaultFormat()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if state := tr.State(); state != StateBuffering {
		t.Errorf("Expected buffering after open, got %s", state)
	}

	if err := tr.WriteFrame(make([]byte, 4)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if state := tr.State(); state != StatePlaying {
		t.Errorf("Expected playing after first frame, got %s", state)
	}

	tr.AutoPause()
	if state := tr.State(); state != StateAutoPaused {
		t.Errorf("Expected auto-paused, got %s", state)
	}

	tr.Pause()
	if state := tr.State(); state != StatePaused {
		t.Errorf("Expected explicit pause to override auto-pause, got %s", state)
	}

	tr.AutoPause()
	if state := tr.State(); state != StatePaused {
		t.Errorf("Expected auto-pause not to override explicit pause, got %s", state)
	}

	tr.Resume()
	if state := tr.State(); state != StatePlaying {
		t.Errorf("Expected playing after resume, got %s", state)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if state := tr.State(); state != StateIdle {
		t.Errorf("Expected idle after close, got %s", state)
	}
}

func TestTransportRecovery(t *testing.T) {
	format := audio.DefaultFormat()
	mix := mixer.New(format, 8, testLogger(), nil)
	transport := &flakyTransport{NullTransport: NewNullTransport(), failAfter: 1}

	p, err := New(testPlayerConfig(), format, mix, transport, nil, nil, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start player: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	if _, err := p.PlayPCM(bytes.NewReader(make([]byte, format.FrameSize()*5)), "flaky", 1.0); err != nil {
		t.Fatalf("PlayPCM failed: %v", err)
	}

	// One write fails, the pump must reopen the transport and keep going
	waitFor(t, "transport reopen", func() bool {
		return transport.opens() >= 2
	})
	waitFor(t, "frames after recovery", func() bool {
		return transport.FramesWritten() >= 2
	})
}

// flakyTransport fails one write to exercise the recovery path
type flakyTransport struct {
	*NullTransport
	failAfter int
	writes    int
	openCount int
}

func (f *flakyTransport) Open(format audio.Format) error {
	f.NullTransport.mu.Lock()
	f.openCount++
	f.NullTransport.mu.Unlock()
	return f.NullTransport.Open(format)
}

func (f *flakyTransport) opens() int {
	f.NullTransport.mu.Lock()
	defer f.NullTransport.mu.Unlock()
	return f.openCount
}

func (f *flakyTransport) WriteFrame(pcm []byte) error {
	f.NullTransport.mu.Lock()
	f.writes++
	fail := f.writes == f.failAfter+1
	f.NullTransport.mu.Unlock()

	if fail {
		return io.ErrClosedPipe
	}
	return f.NullTransport.WriteFrame(pcm)
}
