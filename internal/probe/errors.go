package probe

import "errors"

// Detection failures are scoped to the one input being probed; none of them
// affect other sources or the mixer.
var (
	// ErrNoAudioStream indicates the input was readable but contains no audio track
	ErrNoAudioStream = errors.New("no audio stream found")

	// ErrCorruptedAudio indicates format or stream metadata is missing or non-numeric
	ErrCorruptedAudio = errors.New("corrupted audio")

	// ErrUnsupportedFormat indicates the codec or container resolved to an unknown sentinel
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrSpoolLimitExceeded indicates a stream input grew past the spool size cap
	ErrSpoolLimitExceeded = errors.New("stream exceeds spool size limit")
)
