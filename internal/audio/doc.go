// Package audio defines the canonical PCM format all sources are normalized
// to before mixing. It provides frame size arithmetic, int16 sample/byte
// conversion helpers, and WAV capture of the mixed output stream.
package audio
