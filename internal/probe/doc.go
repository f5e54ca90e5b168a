// Package probe implements audio format detection by shelling out to
// ffprobe. It handles files, remote URLs and raw streams (spooled to a
// bounded temporary file, since ffprobe needs random access), validates
// that a usable audio stream exists, and classifies failures as missing
// audio, corrupted metadata or unsupported formats.
package probe
