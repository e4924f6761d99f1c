// Package config provides configuration loading and validation for the speech
// analysis service. It handles YAML-based configuration with per-section struct
// validation covering the server, audio decoding, pitch estimation, storage and
// logging parameters.
package config
