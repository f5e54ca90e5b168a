// Package mixer combines any number of PCM byte streams into one continuous
// output on a fixed clock. Each registered stream owns an append-only buffer
// fed by its source; every tick the mixer extracts or silence-pads one frame
// per stream, mixes the frames with volume scaling and clipping, and emits
// exactly one output frame. Stream failures are isolated: a source error
// force-removes that stream and never disturbs the tick loop or its peers.
package mixer
