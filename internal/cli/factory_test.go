package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/foreman/internal/adapters/memory"
	redisadapter "github.com/aretw0/foreman/internal/adapters/redis"
)

const factoryWorkflow = `
version: "1.0.0"
metadata:
  name: factory-test
status: [open, closed]
stage: [idea, done]
states:
  idea: {status: open, stage: idea}
  done: {status: closed, stage: done}
invariants:
  - name: has_title
    logic: length(title) > 0
commands:
  delegate:
    from: [idea]
    to: done
    dispatch_map:
      idea: "true {id}"
`

func writeDescriptor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(factoryWorkflow), 0o644))
	return path
}

func TestBuildRuntime_Defaults(t *testing.T) {
	cfg := defaultConfig()
	cfg.Descriptor = writeDescriptor(t)

	rt, err := BuildRuntime(cfg, slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.NotNil(t, rt.Engine)
	assert.NotNil(t, rt.Handler)
	assert.NotNil(t, rt.Scheduler)
	assert.NotNil(t, rt.Metrics)
	assert.Nil(t, rt.Pool)

	_, ok := rt.Store.(*memory.Store)
	assert.True(t, ok, "empty redis addr should select the in-memory store")
}

func TestBuildRuntime_RedisStore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Descriptor = writeDescriptor(t)
	cfg.Redis.Addr = "localhost:6379"

	rt, err := BuildRuntime(cfg, slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, ok := rt.Store.(*redisadapter.Store)
	assert.True(t, ok)
}

func TestBuildRuntime_PoolDispatcher(t *testing.T) {
	cfg := defaultConfig()
	cfg.Descriptor = writeDescriptor(t)
	cfg.Dispatch.Mode = "pool"
	cfg.Dispatch.Pool.Members = []string{"pool-0"}
	cfg.Dispatch.Pool.StateFile = filepath.Join(t.TempDir(), "pool.json")

	rt, err := BuildRuntime(cfg, slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	require.NotNil(t, rt.Pool)
	assert.Empty(t, rt.Pool.Claims())
}

func TestBuildRuntime_MissingDescriptor(t *testing.T) {
	cfg := defaultConfig()
	cfg.Descriptor = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := BuildRuntime(cfg, slogt.New(t))
	assert.Error(t, err)
}
