package file_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/foreman/internal/adapters/file"
	"github.com/aretw0/foreman/pkg/domain"
)

func TestRecorder_AppendAndTail(t *testing.T) {
	r := file.NewRecorder(filepath.Join(t.TempDir(), "audit", "dispatches.jsonl"))
	ctx := context.Background()

	pid := 100
	for _, id := range []string{"WL-1", "WL-2", "WL-3"} {
		require.NoError(t, r.RecordDispatch(ctx, domain.DispatchResult{
			Success:    true,
			PID:        &pid,
			Command:    "agent run " + id,
			WorkItemID: id,
			Timestamp:  time.Now().UTC(),
		}))
	}

	records, err := r.Tail(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "WL-2", records[0].Dispatch.WorkItemID)
	assert.Equal(t, "WL-3", records[1].Dispatch.WorkItemID)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestRecorder_TailMissingFile(t *testing.T) {
	r := file.NewRecorder(filepath.Join(t.TempDir(), "none.jsonl"))
	records, err := r.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
