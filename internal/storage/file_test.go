package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLogger())
	ctx := context.Background()

	in := map[string]any{"functions": map[string]any{"f1": "do things"}}
	location, err := store.Write(ctx, KeyFunctionMetadata, in)
	require.NoError(t, err)
	assert.Equal(t, KeyFunctionMetadata, filepath.Base(location))

	var out map[string]any
	require.NoError(t, store.Read(ctx, KeyFunctionMetadata, &out))
	assert.Contains(t, out, "functions")
}

func TestFileStoreNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLogger())

	var out map[string]any
	err := store.Read(context.Background(), ScheduleKey("missing"), &out)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileStoreOverwritesWholeObject(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLogger())
	ctx := context.Background()

	_, err := store.Write(ctx, "deployment_state.json", map[string]string{"old": "value", "stale": "field"})
	require.NoError(t, err)
	_, err = store.Write(ctx, "deployment_state.json", map[string]string{"new": "value"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, store.Read(ctx, "deployment_state.json", &out))
	assert.Equal(t, map[string]string{"new": "value"}, out)
}

func TestKeyNaming(t *testing.T) {
	assert.Equal(t, "schedule_image_resizer.json", ScheduleKey("image_resizer"))
	assert.Equal(t, "submission_abc123.json", SubmissionKey("abc123"))
}
