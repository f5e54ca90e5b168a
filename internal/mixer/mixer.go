package mixer

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/metrics"
)

// readChunkSize is the per-read buffer for source data arrival
const readChunkSize = 4096

// frameChannelDepth bounds how far the consumer may lag before frames are
// dropped
const frameChannelDepth = 16

// Mixer owns the active streams and the tick loop. One output frame is
// emitted per tick on the Frames channel, mixed from whatever each stream
// has buffered; missing data is silence-padded so output never stalls.
type Mixer struct {
	format     audio.Format
	maxStreams int
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	streams map[string]*stream
	ticking bool
	closed  bool

	// autoTick disarms the loop for deterministic tests
	autoTick bool

	frames chan []byte
}

// New creates a mixer for the given canonical format. The tick loop starts
// with the first registered stream and stops once no streams remain.
func New(format audio.Format, maxStreams int, logger *slog.Logger, m *metrics.Metrics) *Mixer {
	return &Mixer{
		format:     format,
		maxStreams: maxStreams,
		logger:     logger,
		metrics:    m,
		streams:    make(map[string]*stream),
		autoTick:   true,
		frames:     make(chan []byte, frameChannelDepth),
	}
}

// Frames returns the combined output: exactly one frame per tick while the
// loop is armed
func (m *Mixer) Frames() <-chan []byte {
	return m.frames
}

// AddStream registers a stream. It rejects (false, no state change)
// registrations past the stream cap or with an id already in use. The first
// registration arms the tick loop.
func (m *Mixer) AddStream(info StreamInfo) bool {
	if info.Source == nil {
		m.logger.Warn("Rejected stream with nil source", slog.String("stream_id", info.ID))
		return false
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return false
	}

	if len(m.streams) >= m.maxStreams {
		m.mu.Unlock()
		m.metrics.RecordStreamRejected("capacity")
		m.logger.Warn("Rejected stream, mixer at capacity",
			slog.String("stream_id", info.ID),
			slog.Int("max_streams", m.maxStreams),
		)
		return false
	}

	if _, exists := m.streams[info.ID]; exists {
		m.mu.Unlock()
		m.metrics.RecordStreamRejected("duplicate_id")
		m.logger.Warn("Rejected stream, id already registered", slog.String("stream_id", info.ID))
		return false
	}

	s := &stream{
		id:         info.ID,
		source:     info.Source,
		volume:     clampVolume(info.Volume),
		onComplete: info.OnComplete,
	}
	m.streams[info.ID] = s

	if !m.ticking && m.autoTick {
		m.ticking = true
		go m.run()
	}

	count := len(m.streams)
	m.mu.Unlock()

	go m.readSource(s)

	m.metrics.RecordStreamAdded()
	m.metrics.SetActiveStreams(count)
	m.logger.Info("Registered stream",
		slog.String("stream_id", s.id),
		slog.Float64("volume", s.volume),
		slog.Int("active_streams", count),
	)

	return true
}

// RemoveStream forcibly unregisters a stream, firing its completion
// callback immediately regardless of buffered data
func (m *Mixer) RemoveStream(id string) bool {
	return m.remove(id, "forced")
}

// GetActiveStreamCount returns the number of registered streams
func (m *Mixer) GetActiveStreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// GetActiveStreamIDs returns the ids of all registered streams
func (m *Mixer) GetActiveStreamIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	return ids
}

// Close force-removes every stream (firing callbacks) and stops the tick
// loop. The mixer accepts no further registrations.
func (m *Mixer) Close() {
	m.mu.Lock()
	m.closed = true
	removed := make([]*stream, 0, len(m.streams))
	for id, s := range m.streams {
		s.markRemoved()
		removed = append(removed, s)
		delete(m.streams, id)
	}
	m.mu.Unlock()

	for _, s := range removed {
		s.complete()
	}
	m.metrics.SetActiveStreams(0)
}

// remove unregisters a stream and fires its completion callback
func (m *Mixer) remove(id, reason string) bool {
	m.mu.Lock()
	s, exists := m.streams[id]
	if !exists {
		m.mu.Unlock()
		return false
	}

	s.markRemoved()
	delete(m.streams, id)
	count := len(m.streams)
	m.mu.Unlock()

	s.complete()

	m.metrics.RecordStreamRemoved(reason)
	m.metrics.SetActiveStreams(count)
	m.logger.Info("Removed stream",
		slog.String("stream_id", id),
		slog.String("reason", reason),
		slog.Int("active_streams", count),
	)

	return true
}

// readSource is the data-arrival handler for one stream: it appends source
// bytes to the stream buffer until EOF or error. A source error forces the
// stream out of the mix without touching its peers.
func (m *Mixer) readSource(s *stream) {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.source.Read(chunk)
		if n > 0 {
			s.append(chunk[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				s.markEnded()
				return
			}

			m.logger.Warn("Stream source failed",
				slog.String("stream_id", s.id),
				slog.String("error", err.Error()),
			)
			m.remove(s.id, "source_error")
			return
		}
	}
}

// run is the tick loop. Deadlines advance on a monotonic schedule so
// per-tick processing time does not accumulate as drift; the loop disarms
// itself once no streams remain and is re-armed by the next AddStream.
func (m *Mixer) run() {
	next := time.Now().Add(m.format.FrameDuration)
	timer := time.NewTimer(m.format.FrameDuration)
	defer timer.Stop()

	for {
		<-timer.C

		if !m.tick() {
			return
		}

		next = next.Add(m.format.FrameDuration)
		wait := time.Until(next)
		if wait < 0 {
			// Ticking fell behind; realign instead of compounding
			next = time.Now().Add(m.format.FrameDuration)
			wait = m.format.FrameDuration
		}
		timer.Reset(wait)
	}
}

// tick mixes and emits exactly one output frame, then releases any
// naturally-drained streams. It reports whether the loop stays armed.
func (m *Mixer) tick() bool {
	start := time.Now()
	frameSize := m.format.FrameSize()

	m.mu.Lock()

	contribs := make([]contribution, 0, len(m.streams))
	for _, s := range m.streams {
		contribs = append(contribs, contribution{
			data:   s.extractFrame(frameSize),
			volume: s.volume,
		})
	}

	frame := mixFrame(contribs, frameSize)

	// Release streams that ended and have drained below one sample's worth
	var completed []*stream
	for id, s := range m.streams {
		if s.drained(m.format.SampleFrameBytes()) {
			s.markRemoved()
			delete(m.streams, id)
			completed = append(completed, s)
		}
	}

	remaining := len(m.streams)
	if remaining == 0 {
		m.ticking = false
	}
	m.mu.Unlock()

	m.emit(frame)

	for _, s := range completed {
		s.complete()
		m.metrics.RecordStreamRemoved("completed")
		m.logger.Info("Stream finished",
			slog.String("stream_id", s.id),
			slog.Int("active_streams", remaining),
		)
	}
	if len(completed) > 0 {
		m.metrics.SetActiveStreams(remaining)
	}

	m.metrics.RecordFrameMixed(time.Since(start).Seconds())

	return remaining > 0
}

// emit hands one frame to the consumer, dropping it if the consumer has
// fallen a full channel behind
func (m *Mixer) emit(frame []byte) {
	select {
	case m.frames <- frame:
	default:
		m.metrics.RecordFrameDropped()
	}
}

// contribution is one stream's input to a single output frame
type contribution struct {
	data   []byte
	volume float64
}

// mixFrame combines per-stream frames into one output frame. Short inputs
// are implicitly silence-padded. A single contributor is only
// volume-scaled, so volume 1.0 reproduces its samples exactly; multiple
// contributors are summed per sample position before rounding and clamping
// to the 16-bit range.
func mixFrame(contribs []contribution, frameSize int) []byte {
	out := make([]byte, frameSize)

	switch len(contribs) {
	case 0:
		return out // silence

	case 1:
		c := contribs[0]
		for i := 0; i+1 < len(c.data); i += 2 {
			sample := int16(c.data[i]) | int16(c.data[i+1])<<8
			scaled := audio.ClampSample(float64(sample) * c.volume)
			out[i] = byte(scaled)
			out[i+1] = byte(scaled >> 8)
		}
		return out

	default:
		for pos := 0; pos+1 < frameSize; pos += 2 {
			var sum float64
			for _, c := range contribs {
				if pos+1 < len(c.data) {
					sample := int16(c.data[pos]) | int16(c.data[pos+1])<<8
					sum += float64(sample) * c.volume
				}
			}
			mixed := audio.ClampSample(sum)
			out[pos] = byte(mixed)
			out[pos+1] = byte(mixed >> 8)
		}
		return out
	}
}
