package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/events"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/worker"
)

func block(row, col int) *grid.BlockID {
	return &grid.BlockID{Row: row, Col: col}
}

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestDefaultConfig(t *testing.T) {
	cfg := worker.DefaultConfig()

	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10, cfg.MaxOutstandingMessages)
	assert.Equal(t, 10*time.Minute, cfg.MaxExtension)
}

func TestTally_EnterMoveLeave(t *testing.T) {
	tally := worker.NewTally()

	assert.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", To: block(5, 3), OccurredAt: t0}))
	assert.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_b", To: block(5, 3), OccurredAt: t0}))
	assert.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", From: block(5, 3), To: block(5, 2), OccurredAt: t0.Add(time.Minute)}))

	got, ok := tally.DeviceBlock("dev_a")
	require.True(t, ok)
	assert.Equal(t, "52", got.String())

	snap := tally.Snapshot()
	assert.Equal(t, 2, snap.DevicesInGrid)
	assert.Equal(t, int64(3), snap.Events)
	require.Len(t, snap.Blocks, 2)

	// Ordered by row then column.
	assert.Equal(t, "52", snap.Blocks[0].Block)
	assert.Equal(t, int64(1), snap.Blocks[0].Entered)
	assert.Equal(t, []string{"dev_a"}, snap.Blocks[0].Devices)

	assert.Equal(t, "53", snap.Blocks[1].Block)
	assert.Equal(t, int64(2), snap.Blocks[1].Entered)
	assert.Equal(t, int64(1), snap.Blocks[1].Left)
	assert.Equal(t, 1, snap.Blocks[1].Occupancy)
	assert.Equal(t, []string{"dev_b"}, snap.Blocks[1].Devices)

	assert.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", From: block(5, 2), OccurredAt: t0.Add(2 * time.Minute)}))
	_, ok = tally.DeviceBlock("dev_a")
	assert.False(t, ok)

	snap = tally.Snapshot()
	assert.Equal(t, 1, snap.DevicesInGrid)
	assert.Equal(t, 0, snap.Blocks[0].Occupancy)
	assert.Empty(t, snap.Blocks[0].Devices)
	assert.Equal(t, int64(1), snap.Blocks[0].Left)
}

func TestTally_IgnoresOutOfOrderEvents(t *testing.T) {
	tally := worker.NewTally()

	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", To: block(1, 1), OccurredAt: t0.Add(time.Minute)}))
	assert.Equal(t, worker.Stale, tally.Apply(events.BlockChanged{DeviceID: "dev_a", To: block(1, 2), OccurredAt: t0}))

	got, ok := tally.DeviceBlock("dev_a")
	require.True(t, ok)
	assert.Equal(t, "11", got.String())
	assert.Equal(t, int64(1), tally.Snapshot().StaleEvents)
}

func TestTally_IgnoresRedelivery(t *testing.T) {
	tally := worker.NewTally()

	enter := events.BlockChanged{DeviceID: "dev_a", To: block(2, 4), OccurredAt: t0}
	leave := events.BlockChanged{DeviceID: "dev_a", From: block(2, 4), OccurredAt: t0.Add(time.Minute)}

	require.Equal(t, worker.Applied, tally.Apply(enter))
	assert.Equal(t, worker.Duplicate, tally.Apply(enter))
	require.Equal(t, worker.Applied, tally.Apply(leave))
	assert.Equal(t, worker.Duplicate, tally.Apply(leave))

	snap := tally.Snapshot()
	require.Len(t, snap.Blocks, 1)
	assert.Equal(t, int64(1), snap.Blocks[0].Entered)
	assert.Equal(t, int64(1), snap.Blocks[0].Left)
	assert.Equal(t, int64(2), snap.Duplicates)
	assert.Equal(t, int64(4), snap.Events)
	assert.Zero(t, snap.DevicesInGrid)

	// The device left the grid, so expiring it counts nothing.
	assert.Zero(t, tally.Expire(t0.Add(time.Hour), time.Minute))
	assert.Equal(t, worker.Applied, tally.Apply(leave), "forgotten after expiry")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "applied", worker.Applied.String())
	assert.Equal(t, "stale", worker.Stale.String())
	assert.Equal(t, "duplicate", worker.Duplicate.String())
}

func TestTally_UsesOwnPlacementWhenEventsWereLost(t *testing.T) {
	tally := worker.NewTally()

	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", To: block(1, 1), OccurredAt: t0}))
	// The 11 -> 12 event never arrived.
	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", From: block(1, 2), To: block(1, 3), OccurredAt: t0.Add(time.Minute)}))

	snap := tally.Snapshot()
	counts := map[string]worker.BlockCount{}
	for _, b := range snap.Blocks {
		counts[b.Block] = b
	}
	assert.Equal(t, int64(1), counts["11"].Left)
	assert.Equal(t, int64(0), counts["12"].Left)
	assert.Equal(t, 1, counts["13"].Occupancy)
}

func TestTally_Expire(t *testing.T) {
	tally := worker.NewTally()

	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_old", To: block(7, 0), OccurredAt: t0}))
	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_new", To: block(7, 0), OccurredAt: t0.Add(50 * time.Minute)}))

	removed := tally.Expire(t0.Add(time.Hour), 30*time.Minute)
	assert.Equal(t, 1, removed)

	snap := tally.Snapshot()
	require.Len(t, snap.Blocks, 1)
	assert.Equal(t, []string{"dev_new"}, snap.Blocks[0].Devices)
	assert.Equal(t, int64(1), snap.Blocks[0].Expired)
	assert.Equal(t, int64(1), snap.Expired)
}

func TestSweepJob_Run(t *testing.T) {
	tally := worker.NewTally()
	require.Equal(t, worker.Applied, tally.Apply(events.BlockChanged{DeviceID: "dev_a", To: block(8, 5), OccurredAt: t0}))

	now := t0.Add(10 * time.Minute)
	job := worker.NewSweepJob(worker.SweepJobConfig{
		Tally:  tally,
		Config: worker.Config{StaleAfter: 5 * time.Minute},
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	result := job.Run(context.Background())
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, now, result.StartTime)

	result = job.Run(context.Background())
	assert.Equal(t, 0, result.Expired)

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.TotalSweeps)
	assert.Equal(t, int64(1), m.TotalExpired)
	assert.Equal(t, 0, m.LastExpired)

	snap := job.MetricsSnapshot()
	assert.Equal(t, int64(2), snap["total_sweeps"])
	assert.Contains(t, snap, "last_sweep_duration")
}

func TestSweepJob_StartStopsOnCancel(t *testing.T) {
	job := worker.NewSweepJob(worker.SweepJobConfig{
		Tally:  worker.NewTally(),
		Config: worker.Config{SweepInterval: time.Millisecond},
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Start(ctx) }()

	require.Eventually(t, func() bool { return job.GetMetrics().TotalSweeps > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweep job did not stop")
	}
}
