package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SweepJob periodically expires devices that stopped reporting.
type SweepJob struct {
	tally  *Tally
	config Config
	logger zerolog.Logger
	now    func() time.Time
	otel   *Metrics

	metrics *SweepMetrics
}

// SweepMetrics tracks sweep job statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	TotalSweeps  int64
	TotalExpired int64

	LastSweepAt       time.Time
	LastSweepDuration time.Duration
	LastExpired       int
}

// SweepJobConfig holds configuration for creating a SweepJob.
type SweepJobConfig struct {
	Tally  *Tally
	Config Config
	Logger zerolog.Logger

	// Metrics, when set, counts expired devices.
	Metrics *Metrics

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewSweepJob creates a new sweep job.
func NewSweepJob(cfg SweepJobConfig) *SweepJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SweepJob{
		tally:   cfg.Tally,
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		now:     now,
		otel:    cfg.Metrics,
		metrics: &SweepMetrics{},
	}
}

// SweepResult contains the result of one sweep.
type SweepResult struct {
	StartTime time.Time
	Duration  time.Duration
	Expired   int
}

// Run performs a single sweep.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	start := j.now()
	expired := j.tally.Expire(start, j.config.StaleAfter)

	result := &SweepResult{
		StartTime: start,
		Duration:  j.now().Sub(start),
		Expired:   expired,
	}
	j.updateMetrics(result)
	j.otel.recordExpired(ctx, expired)

	if expired > 0 {
		j.logger.Info().
			Int("expired", expired).
			Dur("stale_after", j.config.StaleAfter).
			Msg("expired silent devices")
	}
	return result
}

// Start runs sweeps every SweepInterval until ctx is done.
func (j *SweepJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.config.SweepInterval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.config.SweepInterval).
		Dur("stale_after", j.config.StaleAfter).
		Msg("starting sweep job")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *SweepJob) updateMetrics(result *SweepResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalSweeps++
	j.metrics.TotalExpired += int64(result.Expired)
	j.metrics.LastSweepAt = result.StartTime
	j.metrics.LastSweepDuration = result.Duration
	j.metrics.LastExpired = result.Expired
}

// GetMetrics returns a copy of the current metrics.
func (j *SweepJob) GetMetrics() SweepMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SweepMetrics{
		TotalSweeps:       j.metrics.TotalSweeps,
		TotalExpired:      j.metrics.TotalExpired,
		LastSweepAt:       j.metrics.LastSweepAt,
		LastSweepDuration: j.metrics.LastSweepDuration,
		LastExpired:       j.metrics.LastExpired,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SweepJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_sweeps":        m.TotalSweeps,
		"total_expired":       m.TotalExpired,
		"last_sweep_at":       m.LastSweepAt,
		"last_sweep_duration": m.LastSweepDuration.String(),
		"last_expired":        m.LastExpired,
	}
}
