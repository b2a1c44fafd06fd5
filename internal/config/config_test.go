// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.Process.FetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Process.TerminationGrace)
	assert.Equal(t, 256, cfg.LogHub.TailSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVER_LISTEN_ADDR", ":9090")
	t.Setenv("PROCESS_TERMINATION_GRACE", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Process.TerminationGrace)
}

func TestLoadRejectsInvalidScratchRoot(t *testing.T) {
	t.Setenv("PROCESS_SCRATCH_ROOT", "")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Process.RestartBackoffCap = 0
	require.Error(t, cfg.Validate())
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
