package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/pkg/geodist"
)

// Agent defaults.
const (
	DefaultFlushInterval = 30 * time.Second
	DefaultFlushBatch    = 50
)

// AgentConfig holds the agent's collaborators.
type AgentConfig struct {
	Source  Source
	Locator *locator.Service
	Mode    poll.Mode

	// Reporter is optional; without it the agent only prints summaries.
	Reporter Reporter

	// Spool is optional; without it undelivered fixes are dropped.
	Spool *Spool

	// Out receives a summary each time the block changes.
	Out io.Writer

	FlushInterval time.Duration
	FlushBatch    int
	Logger        zerolog.Logger

	// Wait overrides the sleep between fixes.
	Wait func(ctx context.Context, d time.Duration) error
}

// Stats counts what the agent did with its fixes.
type Stats struct {
	Fixes     int64
	Delivered int64
	Skipped   int64
	Spooled   int64
	Flushed   int64
	Rejected  int64
	Dropped   int64
}

// Step is the outcome of handling one fix.
type Step struct {
	Report    *locator.Report
	Changed   bool
	Delivered bool
	Skipped   bool
	Spooled   bool
	Wait      time.Duration
}

// Agent reads fixes, tells the user where they are and reports to the API.
type Agent struct {
	source   Source
	locator  *locator.Service
	mode     poll.Mode
	reporter Reporter
	spool    *Spool
	out      io.Writer
	logger   zerolog.Logger

	flushInterval time.Duration
	flushBatch    int
	wait          func(ctx context.Context, d time.Duration) error

	flushMu sync.Mutex

	// Loop state; only touched by the Run goroutine.
	started      bool
	lastBlock    *grid.BlockID
	lastReported *locator.Fix
	lastAdvice   poll.Advice

	fixes, delivered, skipped, spooled, flushed, rejected, dropped atomic.Int64
}

// NewAgent creates an agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Source == nil {
		return nil, errors.New("tracker: source is required")
	}
	if cfg.Locator == nil {
		return nil, errors.New("tracker: locator is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = poll.ModeForeground
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", poll.ErrInvalidMode, cfg.Mode)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = DefaultFlushBatch
	}
	if cfg.Wait == nil {
		cfg.Wait = sleep
	}

	return &Agent{
		source:        cfg.Source,
		locator:       cfg.Locator,
		mode:          cfg.Mode,
		reporter:      cfg.Reporter,
		spool:         cfg.Spool,
		out:           cfg.Out,
		logger:        cfg.Logger.With().Str("component", "tracker").Logger(),
		flushInterval: cfg.FlushInterval,
		flushBatch:    cfg.FlushBatch,
		wait:          cfg.Wait,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run processes fixes until the source is exhausted or ctx is cancelled.
// A background loop retries spooled fixes every FlushInterval.
func (a *Agent) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return a.loop(gctx)
	})
	if a.reporter != nil && a.spool != nil {
		g.Go(func() error {
			return a.flushLoop(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) loop(ctx context.Context) error {
	for {
		fix, err := a.source.Next(ctx)
		if errors.Is(err, ErrSourceExhausted) {
			a.logger.Info().Msg("position source exhausted")
			return nil
		}
		if err != nil {
			return err
		}

		step, err := a.Step(ctx, fix)
		if err != nil {
			a.logger.Warn().Err(err).Float64("lat", fix.Lat).Float64("lon", fix.Lon).Msg("skipping fix")
			continue
		}

		if err := a.wait(ctx, step.Wait); err != nil {
			return err
		}
	}
}

func (a *Agent) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Step handles a single fix: locate it locally, print the summary when the
// block changed, then deliver or spool it. Spooled fixes are delivered
// first so the server sees fixes in the order they were taken.
func (a *Agent) Step(ctx context.Context, fix locator.Fix) (*Step, error) {
	report, err := a.locator.Locate(ctx, fix.Lat, fix.Lon, a.mode)
	if err != nil {
		return nil, err
	}
	a.fixes.Add(1)

	step := &Step{Report: report}
	block := report.BlockID()
	if !a.started || !sameBlock(a.lastBlock, block) {
		step.Changed = true
		fmt.Fprintf(a.out, "%s\n\n", report.Summary)
	}
	a.started = true
	a.lastBlock = block

	advice := report.Advice
	switch {
	case a.reporter == nil:
	case !step.Changed && a.lastReported != nil &&
		geodist.Haversine(a.lastReported.Lat, a.lastReported.Lon, fix.Lat, fix.Lon) < a.lastAdvice.MinDistanceChange:
		step.Skipped = true
		a.skipped.Add(1)
	default:
		if _, drained := a.flush(ctx); !drained {
			// Older fixes are still queued; this one goes behind them.
			step.Spooled = a.spoolFix(ctx, fix)
			break
		}
		d, err := a.reporter.Report(ctx, fix)
		switch {
		case err == nil:
			step.Delivered = true
			a.delivered.Add(1)
			reported := fix
			a.lastReported = &reported
			if d.Advice.Interval > 0 {
				advice = d.Advice
			}
		case errors.Is(err, ErrRejected):
			a.rejected.Add(1)
			a.logger.Warn().Err(err).Msg("api rejected fix")
		default:
			a.logger.Debug().Err(err).Msg("fix not delivered")
			step.Spooled = a.spoolFix(ctx, fix)
		}
	}

	a.lastAdvice = advice
	step.Wait = advice.Interval

	a.logger.Debug().
		Bool("in_grid", report.InGrid).
		Bool("changed", step.Changed).
		Bool("delivered", step.Delivered).
		Dur("next_in", step.Wait).
		Msg("fix handled")
	return step, nil
}

func (a *Agent) spoolFix(ctx context.Context, fix locator.Fix) bool {
	if a.spool == nil {
		a.dropped.Add(1)
		return false
	}
	if err := a.spool.Push(ctx, fix); err != nil {
		a.dropped.Add(1)
		a.logger.Error().Err(err).Msg("failed to spool fix")
		return false
	}
	a.spooled.Add(1)
	return true
}

// Flush delivers spooled fixes oldest first and stops at the first one that
// cannot be delivered. It returns how many fixes left the spool.
func (a *Agent) Flush(ctx context.Context) int {
	removed, _ := a.flush(ctx)
	return removed
}

// flush reports drained when the spool is known to be empty afterwards. It
// is not drained when another flush holds the lock.
func (a *Agent) flush(ctx context.Context) (removed int, drained bool) {
	if a.spool == nil || a.reporter == nil {
		return 0, true
	}
	if !a.flushMu.TryLock() {
		return 0, false
	}
	defer a.flushMu.Unlock()

	defer func() {
		if removed > 0 {
			a.logger.Info().Int("count", removed).Msg("flushed spooled fixes")
		}
	}()

	for {
		batch, err := a.spool.Peek(ctx, a.flushBatch)
		if err != nil {
			a.logger.Error().Err(err).Msg("failed to read spool")
			return removed, false
		}
		if len(batch) == 0 {
			return removed, true
		}

		for _, sf := range batch {
			_, err := a.reporter.Report(ctx, sf.Fix)
			switch {
			case err == nil:
				a.flushed.Add(1)
			case errors.Is(err, ErrRejected):
				a.rejected.Add(1)
				a.logger.Warn().Err(err).Msg("api rejected spooled fix")
			default:
				return removed, false
			}
			if err := a.spool.Remove(ctx, sf.ID); err != nil {
				a.logger.Error().Err(err).Msg("failed to remove spooled fix")
				return removed, false
			}
			removed++
		}
	}
}

// Stats returns counters since the agent started.
func (a *Agent) Stats() Stats {
	return Stats{
		Fixes:     a.fixes.Load(),
		Delivered: a.delivered.Load(),
		Skipped:   a.skipped.Load(),
		Spooled:   a.spooled.Load(),
		Flushed:   a.flushed.Load(),
		Rejected:  a.rejected.Load(),
		Dropped:   a.dropped.Load(),
	}
}

func sameBlock(a, b *grid.BlockID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
