// Package transcode converts arbitrary-format audio into the canonical PCM
// encoding by driving an ffmpeg subprocess over standard input/output.
// Loudness normalization is applied unconditionally. Whole-buffer and
// streaming modes are provided; streaming output passes through a ring
// buffer that absorbs jitter between transcoder throughput and the mixer's
// fixed consumption rate. Each subprocess is owned by exactly one
// conversion call and its failure never affects other sources.
package transcode
