package featureflags

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = time.Minute

// ServiceConfig configures a Service. DefaultFlags nil means DefaultFlags().
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags []Flag
}

// Service serves flags from an in-memory snapshot of defaults overlaid
// with the repository. The snapshot is reloaded at most once per CacheTTL;
// concurrent reloads collapse into one repository call. When the
// repository fails the previous snapshot keeps being served.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults []Flag
	now      func() time.Time

	reloads singleflight.Group

	mu       sync.RWMutex
	snapshot map[string]Flag
	loadedAt time.Time
}

func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	defaults := cfg.DefaultFlags
	if defaults == nil {
		defaults = DefaultFlags()
	}
	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger.With().Str("component", "featureflags").Logger(),
		ttl:      ttl,
		defaults: defaults,
		now:      time.Now,
	}
}

// Flag returns the effective flag for key, or nil for an unknown key.
func (s *Service) Flag(ctx context.Context, key string) *Flag {
	f, ok := s.current(ctx)[key]
	if !ok {
		return nil
	}
	return &f
}

// All returns every effective flag sorted by key.
func (s *Service) All(ctx context.Context) []Flag {
	snap := s.current(ctx)
	out := make([]Flag, 0, len(snap))
	for _, f := range snap {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set stores flags atomically and drops the snapshot so the change is
// visible to the next read on this instance. Other instances see it once
// their snapshot expires.
func (s *Service) Set(ctx context.Context, flags ...Flag) error {
	now := s.now().UTC()
	for i := range flags {
		flags[i].UpdatedAt = now
	}
	if err := s.repo.Upsert(ctx, flags...); err != nil {
		return err
	}
	s.InvalidateCache()
	return nil
}

// InvalidateCache forces a reload on the next read.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) current(ctx context.Context) map[string]Flag {
	s.mu.RLock()
	snap, loadedAt := s.snapshot, s.loadedAt
	s.mu.RUnlock()

	if snap != nil && !loadedAt.IsZero() && s.now().Sub(loadedAt) < s.ttl {
		return snap
	}

	v, _, _ := s.reloads.Do("reload", func() (interface{}, error) {
		return s.reload(ctx, snap), nil
	})
	return v.(map[string]Flag)
}

// reload builds a new snapshot. On repository failure it keeps stale, or
// the bare defaults if nothing was ever loaded, and waits a full TTL
// before retrying.
func (s *Service) reload(ctx context.Context, stale map[string]Flag) map[string]Flag {
	stored, err := s.repo.List(ctx)

	next := make(map[string]Flag, len(s.defaults)+len(stored))
	switch {
	case err == nil:
		for _, f := range s.defaults {
			next[f.Key] = f
		}
		for _, f := range stored {
			next[f.Key] = f
		}
	case stale != nil:
		s.logger.Warn().Err(err).Msg("flag reload failed, serving previous snapshot")
		next = stale
	default:
		s.logger.Warn().Err(err).Msg("flag reload failed, serving defaults")
		for _, f := range s.defaults {
			next[f.Key] = f
		}
	}

	s.mu.Lock()
	s.snapshot = next
	s.loadedAt = s.now()
	s.mu.Unlock()
	return next
}

// IsAdaptivePollingEnabled reports whether poll intervals shrink near
// boundaries.
func (s *Service) IsAdaptivePollingEnabled(ctx context.Context) bool {
	return s.Flag(ctx, FlagAdaptivePolling).BoolValue(true)
}

// AreBlockEventsEnabled reports whether block changes are published.
func (s *Service) AreBlockEventsEnabled(ctx context.Context) bool {
	return s.Flag(ctx, FlagBlockChangeEvents).BoolValue(true)
}

// PollThreshold returns the threshold override in meters, or fallback when
// the flag is unset or zero.
func (s *Service) PollThreshold(ctx context.Context, fallback float64) float64 {
	if v := s.Flag(ctx, FlagPollThreshold).Float64Value(0); v > 0 {
		return v
	}
	return fallback
}

// TrackMaxPoints returns the track size cap, or fallback when unset.
func (s *Service) TrackMaxPoints(ctx context.Context, fallback int) int {
	if v := s.Flag(ctx, FlagTrackMaxPoints).IntValue(0); v > 0 {
		return v
	}
	return fallback
}
