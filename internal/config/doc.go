// Package config provides configuration structures and utilities for devprint.
//
// Settings come from three places, in increasing precedence: the .devprint
// YAML file, the environment (optionally seeded from a .env file), and CLI
// flags. The file additionally carries per-probe settings such as timeouts
// and whether a probe is disabled.
package config
