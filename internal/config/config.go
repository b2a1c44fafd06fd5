// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads agent configuration from defaults, an optional YAML
// file, and environment variables, in that order of increasing precedence.
package config

import "time"

// Config holds everything the agent needs to start: where to listen, where
// to stage extracted archives, and the lifecycle timing parameters spec.md
// §4.4/§5 leave as implementation defaults.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Process ProcessConfig `koanf:"process"`
	LogHub  LogHubConfig  `koanf:"loghub"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig controls the HTTP/WebSocket listener (C6).
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr"`
	// PublicBaseURL, if set, is used instead of deriving absolute URLs from
	// the incoming request's Host header (spec.md §6 index/snapshot docs).
	PublicBaseURL string `koanf:"public_base_url"`
}

// ProcessConfig controls C1/C4 lifecycle timing.
type ProcessConfig struct {
	// ScratchRoot is the parent directory under which each process gets its
	// own extraction directory (spec.md §1: scratch layout beyond what the
	// engine needs is out of scope; this is the one directory it does need).
	ScratchRoot string `koanf:"scratch_root"`

	// FetchTimeout bounds the archive download (spec.md §5, default 5m).
	// Extraction of the downloaded file is not cut short by it.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// TerminationGrace is how long to wait after SIGTERM before SIGKILL
	// (spec.md §4.4, default 10s).
	TerminationGrace time.Duration `koanf:"termination_grace"`

	// RestartBackoffBase/Cap/ResetWindow implement spec.md §4.4's
	// delay_k = min(cap, base*2^k) * uniform(0.5, 1.5) formula.
	RestartBackoffBase        time.Duration `koanf:"restart_backoff_base"`
	RestartBackoffCap         time.Duration `koanf:"restart_backoff_cap"`
	RestartBackoffResetWindow time.Duration `koanf:"restart_backoff_reset_window"`
}

// LogHubConfig controls C3 sizing (spec.md §3).
type LogHubConfig struct {
	TailSize          int `koanf:"tail_size"`
	SubscriberQueueSize int `koanf:"subscriber_queue_size"`
}

// LoggingConfig mirrors the teacher's logging.Config surface.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns sensible defaults, applied before the config file
// and environment variable layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Process: ProcessConfig{
			ScratchRoot:               "/var/lib/slugrunner/processes",
			FetchTimeout:              5 * time.Minute,
			TerminationGrace:          10 * time.Second,
			RestartBackoffBase:        1 * time.Second,
			RestartBackoffCap:         30 * time.Second,
			RestartBackoffResetWindow: 60 * time.Second,
		},
		LogHub: LogHubConfig{
			TailSize:            256,
			SubscriberQueueSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
