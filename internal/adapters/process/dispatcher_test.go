package process_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/foreman/internal/adapters/process"
)

func TestDispatch_Success(t *testing.T) {
	d := process.New()

	res := d.Dispatch(context.Background(), "exit 0", "WL-1")
	require.True(t, res.Success)
	require.NotNil(t, res.PID)
	assert.Greater(t, *res.PID, 0)
	assert.Equal(t, "exit 0", res.Command)
	assert.Equal(t, "WL-1", res.WorkItemID)
	assert.Nil(t, res.Error)
}

func TestDispatch_ReturnsBeforeWorkerFinishes(t *testing.T) {
	d := process.New()

	start := time.Now()
	res := d.Dispatch(context.Background(), "sleep 30", "WL-1")
	elapsed := time.Since(start)

	require.True(t, res.Success)
	// Fire-and-forget: a 30s worker must not block the dispatcher.
	assert.Less(t, elapsed, 5*time.Second)
}

func TestDispatch_SpawnFailureReported(t *testing.T) {
	// A working directory that does not exist makes Start fail.
	d := process.New(process.WithDir(filepath.Join(t.TempDir(), "missing")))

	res := d.Dispatch(context.Background(), "exit 0", "WL-1")
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "spawn failed")
	assert.Nil(t, res.PID)
}

func TestDispatchWithEnv(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	d := process.New(process.WithEnv(map[string]string{"FOREMAN_TEST_BASE": "base"}))

	res := d.DispatchWithEnv(context.Background(),
		`printf '%s' "$FOREMAN_TEST_BASE:$FOREMAN_TEST_EXTRA" > `+marker,
		"WL-1",
		map[string]string{"FOREMAN_TEST_EXTRA": "extra"})
	require.True(t, res.Success)

	// The worker runs detached; poll briefly for its output.
	deadline := time.Now().Add(3 * time.Second)
	var data []byte
	for time.Now().Before(deadline) {
		var err error
		data, err = os.ReadFile(marker)
		if err == nil && len(data) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, "base:extra", string(data))
}
