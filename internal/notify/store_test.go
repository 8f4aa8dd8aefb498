package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "status.json")
	store := NewFileStore(path)
	ctx := context.Background()

	status, err := store.Get(ctx, GroupKey("numba", "main"))
	require.NoError(t, err)
	assert.Nil(t, status)

	finishedAt := metav1.NewTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Put(ctx, GroupKey("numba", "main"), v1beta1.PipelineRunStatus{
		RunID:      "run-1",
		Pipeline:   "numba",
		Branch:     "main",
		Status:     v1beta1.RunStatusFailed,
		Jobs:       4,
		FinishedAt: finishedAt,
	}))

	require.NoError(t, store.Put(ctx, GroupKey("numba", "feature"), v1beta1.PipelineRunStatus{
		Status: v1beta1.RunStatusPassed,
	}))

	status, err = NewFileStore(path).Get(ctx, GroupKey("numba", "main"))
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, v1beta1.RunStatusFailed, status.Status)
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, 4, status.Jobs)
	assert.True(t, finishedAt.Equal(&status.FinishedAt))

	status, err = store.Get(ctx, GroupKey("numba", "feature"))
	require.NoError(t, err)
	assert.Equal(t, v1beta1.RunStatusPassed, status.Status)
}

func TestFileStoreConcurrentPut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, NewFileStore(path).Put(ctx, fmt.Sprintf("p@%d", i), v1beta1.PipelineRunStatus{Status: v1beta1.RunStatusPassed}))
		}()
	}

	wg.Wait()

	store := NewFileStore(path)
	for i := 0; i < 10; i++ {
		status, err := store.Get(ctx, fmt.Sprintf("p@%d", i))
		require.NoError(t, err)
		assert.NotNil(t, status, i)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Get(context.Background(), "p@main")
	assert.Error(t, err)
}
