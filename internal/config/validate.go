// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "fmt"

// Validate rejects configuration values the agent cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Process.ScratchRoot == "" {
		return fmt.Errorf("process.scratch_root must not be empty")
	}
	if c.Process.FetchTimeout <= 0 {
		return fmt.Errorf("process.fetch_timeout must be positive")
	}
	if c.Process.TerminationGrace <= 0 {
		return fmt.Errorf("process.termination_grace must be positive")
	}
	if c.Process.RestartBackoffBase <= 0 || c.Process.RestartBackoffCap <= 0 {
		return fmt.Errorf("process.restart_backoff_base and restart_backoff_cap must be positive")
	}
	if c.Process.RestartBackoffCap < c.Process.RestartBackoffBase {
		return fmt.Errorf("process.restart_backoff_cap must be >= restart_backoff_base")
	}
	if c.LogHub.TailSize <= 0 {
		return fmt.Errorf("loghub.tail_size must be positive")
	}
	if c.LogHub.SubscriberQueueSize <= 0 {
		return fmt.Errorf("loghub.subscriber_queue_size must be positive")
	}
	return nil
}
