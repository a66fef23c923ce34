package featureflags

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository keeps flags in a map. Used when no database is
// configured and in tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository returns an empty repository, so every flag starts
// at its default.
func NewInMemoryRepository(seed ...Flag) *InMemoryRepository {
	r := &InMemoryRepository{flags: make(map[string]Flag, len(seed))}
	for _, f := range seed {
		r.flags[f.Key] = f
	}
	return r
}

func (r *InMemoryRepository) List(_ context.Context) ([]Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *InMemoryRepository) Upsert(_ context.Context, flags ...Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range flags {
		r.flags[f.Key] = f
	}
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.flags, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
