package tracker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/tracker"
)

const replayYAML = `
fixes:
  - lat: 35.87
    lon: -106.33
    accuracy: 5
    time: 2026-03-01T12:00:00Z
  - lat: 35.687
    lon: -105.938
    altitude: 2134
`

func TestDecodeReplay(t *testing.T) {
	src, err := tracker.DecodeReplay(strings.NewReader(replayYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 35.87, first.Lat)
	require.NotNil(t, first.Accuracy)
	assert.Equal(t, 5.0, *first.Accuracy)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), first.RecordedAt.UTC())

	second, err := src.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, second.Altitude)
	assert.Equal(t, 2134.0, *second.Altitude)
	assert.False(t, second.RecordedAt.IsZero())

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, tracker.ErrSourceExhausted)
}

func TestDecodeReplay_Invalid(t *testing.T) {
	_, err := tracker.DecodeReplay(strings.NewReader("fixes: [lat: x"))
	assert.Error(t, err)
}

func TestLoadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(replayYAML), 0o600))

	src, err := tracker.LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	_, err = tracker.LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReplaySource_Cancelled(t *testing.T) {
	src, err := tracker.DecodeReplay(strings.NewReader(replayYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
