package tracker_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/internal/tracker"
)

var (
	inBlock53   = locator.Fix{Lat: 35.87, Lon: -106.33}
	nearBlock53 = locator.Fix{Lat: 35.87001, Lon: -106.33}
	outside     = locator.Fix{Lat: 35.687, Lon: -105.938}
)

type fakeReporter struct {
	mu     sync.Mutex
	fixes  []locator.Fix
	errs   []error
	advice poll.Advice
}

func (r *fakeReporter) Report(_ context.Context, fix locator.Fix) (*tracker.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, fix)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &tracker.Delivery{Advice: r.advice}, nil
}

func (r *fakeReporter) reported() []locator.Fix {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]locator.Fix(nil), r.fixes...)
}

func newLocator(t *testing.T) *locator.Service {
	t.Helper()
	svc, err := locator.NewService(locator.ServiceConfig{
		Policy: poll.DefaultPolicy(),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func noWait(context.Context, time.Duration) error { return nil }

func TestNewAgent_Validation(t *testing.T) {
	_, err := tracker.NewAgent(tracker.AgentConfig{Locator: newLocator(t)})
	assert.Error(t, err)

	_, err = tracker.NewAgent(tracker.AgentConfig{Source: tracker.NewReplaySource(nil)})
	assert.Error(t, err)

	_, err = tracker.NewAgent(tracker.AgentConfig{
		Source:  tracker.NewReplaySource(nil),
		Locator: newLocator(t),
		Mode:    poll.Mode("WALKING"),
	})
	assert.ErrorIs(t, err, poll.ErrInvalidMode)
}

func TestAgent_PrintsSummaryOnBlockChange(t *testing.T) {
	var out bytes.Buffer
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:  tracker.NewReplaySource([]locator.Fix{inBlock53, nearBlock53, outside, outside}),
		Locator: newLocator(t),
		Out:     &out,
		Wait:    noWait,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, agent.Run(context.Background()))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "Block 53"))
	assert.Equal(t, 1, strings.Count(text, "Outside the grid"))
	assert.Less(t, strings.Index(text, "Block 53"), strings.Index(text, "Outside the grid"))
	assert.Equal(t, int64(4), agent.Stats().Fixes)
}

func TestAgent_SkipsSmallMovesInsideBlock(t *testing.T) {
	rep := &fakeReporter{}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := agent.Step(ctx, inBlock53)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.True(t, first.Delivered)

	second, err := agent.Step(ctx, nearBlock53)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.True(t, second.Skipped)

	// Leaving the block is always reported.
	third, err := agent.Step(ctx, outside)
	require.NoError(t, err)
	assert.True(t, third.Changed)
	assert.True(t, third.Delivered)

	assert.Len(t, rep.reported(), 2)
	assert.Equal(t, int64(1), agent.Stats().Skipped)
}

func TestAgent_UsesServerAdvice(t *testing.T) {
	rep := &fakeReporter{advice: poll.Advice{Interval: 42 * time.Second, MinDistanceChange: 25}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	step, err := agent.Step(context.Background(), inBlock53)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, step.Wait)
}

func TestAgent_LocalAdviceWhenOffline(t *testing.T) {
	rep := &fakeReporter{errs: []error{tracker.ErrUndelivered}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Mode:     poll.ModeBackground,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	step, err := agent.Step(context.Background(), outside)
	require.NoError(t, err)
	assert.False(t, step.Delivered)
	assert.Equal(t, poll.DefaultBackground, step.Wait)
	assert.Equal(t, int64(1), agent.Stats().Dropped)
}

func TestAgent_SpoolsUndeliveredAndFlushes(t *testing.T) {
	ctx := context.Background()
	spool, err := tracker.OpenSpool(ctx, filepath.Join(t.TempDir(), "spool.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = spool.Close() })

	rep := &fakeReporter{errs: []error{fmt.Errorf("%w: circuit open", tracker.ErrUndelivered)}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Spool:    spool,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	step, err := agent.Step(ctx, inBlock53)
	require.NoError(t, err)
	assert.True(t, step.Spooled)

	n, err := spool.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	step, err = agent.Step(ctx, outside)
	require.NoError(t, err)
	assert.True(t, step.Delivered)

	n, err = spool.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reported := rep.reported()
	require.Len(t, reported, 3)
	assert.Equal(t, inBlock53.Lat, reported[1].Lat, "spooled fix goes first")
	assert.Equal(t, outside.Lat, reported[2].Lat)

	stats := agent.Stats()
	assert.Equal(t, int64(1), stats.Spooled)
	assert.Equal(t, int64(1), stats.Flushed)
}

func TestAgent_RejectedFixIsNotSpooled(t *testing.T) {
	ctx := context.Background()
	spool, err := tracker.OpenSpool(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = spool.Close() })

	rep := &fakeReporter{errs: []error{tracker.ErrRejected}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Spool:    spool,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	step, err := agent.Step(ctx, inBlock53)
	require.NoError(t, err)
	assert.False(t, step.Delivered)
	assert.False(t, step.Spooled)

	n, err := spool.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), agent.Stats().Rejected)
}

func TestAgent_FlushStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	spool, err := tracker.OpenSpool(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = spool.Close() })

	require.NoError(t, spool.Push(ctx, inBlock53))
	require.NoError(t, spool.Push(ctx, outside))

	rep := &fakeReporter{errs: []error{nil, tracker.ErrUndelivered}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Spool:    spool,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, agent.Flush(ctx))

	left, err := spool.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, outside.Lat, left[0].Fix.Lat)
}

func TestAgent_QueuesBehindUndrainedSpool(t *testing.T) {
	ctx := context.Background()
	spool, err := tracker.OpenSpool(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = spool.Close() })

	require.NoError(t, spool.Push(ctx, inBlock53))

	rep := &fakeReporter{errs: []error{tracker.ErrUndelivered}}
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:   tracker.NewReplaySource(nil),
		Locator:  newLocator(t),
		Reporter: rep,
		Spool:    spool,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	step, err := agent.Step(ctx, outside)
	require.NoError(t, err)
	assert.False(t, step.Delivered)
	assert.True(t, step.Spooled)

	// Only the spooled fix was tried; the live one waits behind it.
	reported := rep.reported()
	require.Len(t, reported, 1)
	assert.Equal(t, inBlock53.Lat, reported[0].Lat)

	left, err := spool.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, inBlock53.Lat, left[0].Fix.Lat)
	assert.Equal(t, outside.Lat, left[1].Fix.Lat)
}

func TestAgent_SkipsInvalidFixes(t *testing.T) {
	var out bytes.Buffer
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:  tracker.NewReplaySource([]locator.Fix{{Lat: 120, Lon: 0}, inBlock53}),
		Locator: newLocator(t),
		Out:     &out,
		Wait:    noWait,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, agent.Run(context.Background()))
	assert.Contains(t, out.String(), "Block 53")
	assert.Equal(t, int64(1), agent.Stats().Fixes)
}

func TestAgent_RunStopsOnCancel(t *testing.T) {
	fixes := make([]locator.Fix, 100)
	for i := range fixes {
		fixes[i] = inBlock53
	}

	ctx, cancel := context.WithCancel(context.Background())
	var steps int
	agent, err := tracker.NewAgent(tracker.AgentConfig{
		Source:  tracker.NewReplaySource(fixes),
		Locator: newLocator(t),
		Logger:  zerolog.Nop(),
		Wait: func(ctx context.Context, _ time.Duration) error {
			steps++
			if steps == 3 {
				cancel()
			}
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	require.NoError(t, agent.Run(ctx))
	assert.Equal(t, 3, steps)
}
