// Package config provides configuration loading and validation for the
// audio engine. It handles YAML-based configuration with per-section struct
// validation covering the mixer, player, probing, transcoding, HTTP API and
// logging.
package config
