package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker is anything exposing circuit breaker state. Both *Client and
// *gobreaker.CircuitBreaker satisfy it.
type Breaker interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// Health is a point-in-time view of one registered dependency.
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Registry collects the breakers of a process so the ops status endpoint
// can report them. Callers record outcomes by name; unknown names are
// ignored.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	breaker Breaker
	success *time.Time
	failure *time.Time
	lastErr string
}

// GlobalRegistry is the registry of the API process.
var GlobalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Register adds b under name, replacing and resetting any previous entry.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{breaker: b}
}

func (r *Registry) RecordSuccess(name string) {
	r.record(name, func(e *entry, at time.Time) { e.success = &at })
}

func (r *Registry) RecordFailure(name string, err error) {
	r.record(name, func(e *entry, at time.Time) {
		e.failure = &at
		if err != nil {
			e.lastErr = err.Error()
		}
	})
}

func (r *Registry) record(name string, apply func(*entry, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		apply(e, r.now())
	}
}

// Get returns the health of name, or nil if it is not registered.
func (r *Registry) Get(name string) *Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// Snapshot returns every dependency's health sorted by name.
func (r *Registry) Snapshot() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, *e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) health(name string) *Health {
	return &Health{
		Name:          name,
		State:         e.breaker.State(),
		Counts:        e.breaker.Counts(),
		LastSuccessAt: e.success,
		LastFailureAt: e.failure,
		LastError:     e.lastErr,
	}
}
