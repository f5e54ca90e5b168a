package audio

import (
	"fmt"
	"time"
)

// Canonical output contract: signed 16-bit little-endian PCM.
const (
	// DefaultSampleRate is the canonical sample rate in Hz
	DefaultSampleRate = 48000

	// DefaultChannels is the canonical channel count (interleaved stereo)
	DefaultChannels = 2

	// BytesPerSample is the width of one 16-bit PCM sample
	BytesPerSample = 2

	// DefaultFrameDuration is the mixer tick cadence
	DefaultFrameDuration = 20 * time.Millisecond
)

// Format describes one PCM encoding: sample rate, channel count and the
// frame duration the mixer operates on.
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// DefaultFormat returns the canonical format: 48kHz stereo with 20ms frames.
func DefaultFormat() Format {
	return Format{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		FrameDuration: DefaultFrameDuration,
	}
}

// Validate checks that the format describes a usable PCM encoding
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}

	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}

	if f.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %v", f.FrameDuration)
	}

	if f.FrameSize() == 0 {
		return fmt.Errorf("frame duration %v too short for sample rate %d", f.FrameDuration, f.SampleRate)
	}

	return nil
}

// FrameSize returns the byte length of one mixed output frame.
// At defaults: 48000 * 0.020 * 2 channels * 2 bytes = 3840 bytes.
func (f Format) FrameSize() int {
	samplesPerChannel := int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
	return samplesPerChannel * f.Channels * BytesPerSample
}

// SampleFrameBytes returns the byte length of one interleaved sample across
// all channels. A naturally-ended stream is released once its buffer holds
// fewer bytes than this.
func (f Format) SampleFrameBytes() int {
	return f.Channels * BytesPerSample
}

// BytesPerSecond returns the PCM byte rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// Duration returns the play time of n bytes of PCM in this format
func (f Format) Duration(n int) time.Duration {
	if f.BytesPerSecond() == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.BytesPerSecond()))
}
