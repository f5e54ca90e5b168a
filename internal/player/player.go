package player

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/metrics"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/mixer"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/probe"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/transcode"
)

// PlaybackInfo describes one logical playback
type PlaybackInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Volume    float64   `json:"volume"`
	StartedAt time.Time `json:"started_at"`
}

// Player runs any number of overlapping playbacks through the mixer and
// pumps the combined output to a transport. Each playback gets a generated
// id; stopping one never disturbs the others. When the last playback ends
// the transport is auto-paused until the next one starts.
type Player struct {
	cfg        config.PlayerConfig
	format     audio.Format
	mixer      *mixer.Mixer
	transport  Transport
	detector   *probe.Detector
	transcoder *transcode.Transcoder
	capture    *audio.Capture
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	playbacks map[string]PlaybackInfo
	closers   map[string]io.Closer
	started   bool
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a player. The capture file is opened immediately when
// configured so a bad path fails at startup rather than mid-playback.
func New(cfg config.PlayerConfig, format audio.Format, mix *mixer.Mixer, transport Transport,
	detector *probe.Detector, transcoder *transcode.Transcoder,
	logger *slog.Logger, m *metrics.Metrics) (*Player, error) {

	var capture *audio.Capture
	if cfg.CapturePath != "" {
		var err error
		capture, err = audio.NewCapture(cfg.CapturePath, format)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture: %w", err)
		}
		logger.Info("Capturing mixed output", slog.String("path", cfg.CapturePath))
	}

	return &Player{
		cfg:        cfg,
		format:     format,
		mixer:      mix,
		transport:  transport,
		detector:   detector,
		transcoder: transcoder,
		capture:    capture,
		logger:     logger,
		metrics:    m,
		playbacks:  make(map[string]PlaybackInfo),
		closers:    make(map[string]io.Closer),
		done:       make(chan struct{}),
	}, nil
}

// Start attaches the transport and begins pumping mixed frames to it
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("player already started")
	}

	if err := p.transport.Open(p.format); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}

	p.started = true
	p.wg.Add(1)
	go p.pump()

	p.logger.Info("Player started",
		slog.Int("sample_rate", p.format.SampleRate),
		slog.Int("channels", p.format.Channels),
		slog.Duration("frame_duration", p.format.FrameDuration),
	)

	return nil
}

// PlayFile probes a local file, converts it to canonical PCM and starts it
// as a new playback
func (p *Player) PlayFile(ctx context.Context, path string, volume float64) (string, error) {
	info, err := p.detector.DetectFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to detect format of %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}

	pcm, err := p.transcoder.ProcessStream(ctx, transcode.StreamRequest{Reader: file, Info: info})
	if err != nil {
		file.Close()
		return "", fmt.Errorf("failed to start conversion of %s: %w", path, err)
	}

	return p.begin(pcm, multiCloser{pcm, file}, path, volume)
}

// PlayStream converts arbitrary encoded audio from r and starts it as a new
// playback. Format info from a prior probe is optional; without it the
// converter detects the container itself.
func (p *Player) PlayStream(ctx context.Context, r io.Reader, info *probe.FormatInfo, name string, volume float64) (string, error) {
	pcm, err := p.transcoder.ProcessStream(ctx, transcode.StreamRequest{Reader: r, Info: info})
	if err != nil {
		return "", fmt.Errorf("failed to start stream conversion: %w", err)
	}

	closer := io.Closer(pcm)
	if c, ok := r.(io.Closer); ok {
		closer = multiCloser{pcm, c}
	}
	return p.begin(pcm, closer, name, volume)
}

// PlayPCM starts a playback from a source already in canonical PCM
func (p *Player) PlayPCM(source io.Reader, name string, volume float64) (string, error) {
	var closer io.Closer
	if c, ok := source.(io.Closer); ok {
		closer = c
	}
	return p.begin(source, closer, name, volume)
}

// begin registers a playback and hands its source to the mixer
func (p *Player) begin(source io.Reader, closer io.Closer, name string, volume float64) (string, error) {
	id := uuid.NewString()
	info := PlaybackInfo{
		ID:        id,
		Name:      name,
		Volume:    volume,
		StartedAt: time.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if closer != nil {
			closer.Close()
		}
		return "", fmt.Errorf("player is closed")
	}
	p.playbacks[id] = info
	if closer != nil {
		p.closers[id] = closer
	}
	p.mu.Unlock()

	ok := p.mixer.AddStream(mixer.StreamInfo{
		ID:         id,
		Source:     source,
		Volume:     volume,
		OnComplete: func() { p.finish(id) },
	})
	if !ok {
		p.mu.Lock()
		delete(p.playbacks, id)
		delete(p.closers, id)
		p.mu.Unlock()
		if closer != nil {
			closer.Close()
		}
		return "", fmt.Errorf("mixer rejected playback %s", name)
	}

	// A fresh playback wakes the transport from an automatic pause, but
	// never from an explicit one
	if p.transport.State() == StateAutoPaused {
		p.transport.Resume()
	}

	p.metrics.RecordPlaybackStarted()
	p.logger.Info("Playback started",
		slog.String("playback_id", id),
		slog.String("name", name),
		slog.Float64("volume", volume),
	)

	return id, nil
}

// finish releases a playback's resources once the mixer is done with it
func (p *Player) finish(id string) {
	p.mu.Lock()
	info, tracked := p.playbacks[id]
	delete(p.playbacks, id)
	closer := p.closers[id]
	delete(p.closers, id)
	remaining := len(p.playbacks)
	p.mu.Unlock()

	if !tracked {
		return
	}

	if closer != nil {
		closer.Close()
	}

	if remaining == 0 {
		p.transport.AutoPause()
	}

	p.logger.Info("Playback finished",
		slog.String("playback_id", id),
		slog.String("name", info.Name),
		slog.Duration("elapsed", time.Since(info.StartedAt)),
		slog.Int("remaining", remaining),
	)
}

// Stop ends one playback by id. It reports false for unknown ids.
func (p *Player) Stop(id string) bool {
	if !p.mixer.RemoveStream(id) {
		return false
	}
	p.metrics.RecordPlaybackStopped()
	return true
}

// StopAll ends every active playback and returns how many were stopped
func (p *Player) StopAll() int {
	p.mu.Lock()
	ids := make([]string, 0, len(p.playbacks))
	for id := range p.playbacks {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	stopped := 0
	for _, id := range ids {
		if p.Stop(id) {
			stopped++
		}
	}
	return stopped
}

// GetActiveCount returns the number of active playbacks
func (p *Player) GetActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.playbacks)
}

// GetPlayback returns info for one playback
func (p *Player) GetPlayback(id string) (PlaybackInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.playbacks[id]
	return info, ok
}

// GetPlaybacks returns info for all active playbacks
func (p *Player) GetPlaybacks() []PlaybackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]PlaybackInfo, 0, len(p.playbacks))
	for _, info := range p.playbacks {
		infos = append(infos, info)
	}
	return infos
}

// Pause explicitly pauses the transport; playbacks keep buffering
func (p *Player) Pause() {
	p.transport.Pause()
}

// Resume lifts an explicit or automatic pause
func (p *Player) Resume() {
	p.transport.Resume()
}

// TransportState returns the transport's current state
func (p *Player) TransportState() State {
	return p.transport.State()
}

// Close stops all playbacks, detaches the transport and finalizes the
// capture file
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.StopAll()

	if started {
		close(p.done)
		p.wg.Wait()
	}

	err := p.transport.Close()

	if p.capture != nil {
		if cerr := p.capture.Close(); cerr != nil && err == nil {
			err = cerr
		} else if p.capture.Frames() > 0 {
			p.logger.Info("Capture finalized",
				slog.String("path", p.cfg.CapturePath),
				slog.Uint64("frames", p.capture.Frames()),
			)
		}
	}

	return err
}

// pump moves mixed frames from the mixer to the transport. A transport
// write failure triggers a close-and-reopen cycle after the configured
// delay rather than killing playback.
func (p *Player) pump() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case frame := <-p.mixer.Frames():
			if err := p.transport.WriteFrame(frame); err != nil {
				p.recoverTransport(err)
				continue
			}

			if p.capture != nil {
				if err := p.capture.WriteFrame(frame); err != nil {
					p.logger.Warn("Capture write failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// recoverTransport rebuilds the transport after a write failure
func (p *Player) recoverTransport(cause error) {
	p.logger.Warn("Transport write failed, re-attaching",
		slog.String("error", cause.Error()),
		slog.Duration("delay", p.cfg.GetRestartDelay()),
	)

	p.transport.Close()

	select {
	case <-p.done:
		return
	case <-time.After(p.cfg.GetRestartDelay()):
	}

	if err := p.transport.Open(p.format); err != nil {
		p.logger.Error("Transport re-attach failed", slog.String("error", err.Error()))
		return
	}

	p.metrics.RecordTransportRestart()
	p.logger.Info("Transport re-attached")
}

// multiCloser closes a PCM stream together with its underlying input
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
