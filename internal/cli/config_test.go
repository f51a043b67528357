package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	// No file at the (absent) default path: built-in defaults apply.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "workflow.yaml", cfg.Descriptor)
	assert.Equal(t, "delegate", cfg.Command)
	assert.Equal(t, "direct", cfg.Dispatch.Mode)

	interval, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `
descriptor: flows/delivery.yaml
command: delegate
fallback_mode: auto-accept
audit_only: true
audit_log: /var/log/foreman/dispatches.jsonl
redis:
  addr: localhost:6379
  prefix: "delivery:"
dispatch:
  mode: pool
  dir: /srv/project
  pool:
    members: [pool-0, pool-1]
    state_file: /srv/project/.foreman/pool.json
    runtime: podman
    claim_timeout: 45m
notify:
  socket: /run/foreman/notify.sock
scheduler:
  interval: 2m
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "flows/delivery.yaml", cfg.Descriptor)
	assert.Equal(t, "auto-accept", cfg.FallbackMode)
	assert.True(t, cfg.AuditOnly)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"pool-0", "pool-1"}, cfg.Dispatch.Pool.Members)
	assert.Equal(t, "podman", cfg.Dispatch.Pool.Runtime)

	timeout, err := cfg.PoolClaimTimeout()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, timeout)

	interval, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, interval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad fallback mode":    "fallback_mode: maybe\n",
		"bad dispatch mode":    "dispatch:\n  mode: fork\n",
		"pool without members": "dispatch:\n  mode: pool\n",
		"bad interval":         "scheduler:\n  interval: soonish\n",
		"bad claim timeout":    "dispatch:\n  mode: direct\n  pool:\n    claim_timeout: later\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
