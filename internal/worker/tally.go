package worker

import (
	"sort"
	"sync"
	"time"

	"github.com/bbagrid/bbagrid/internal/events"
	"github.com/bbagrid/bbagrid/internal/grid"
)

// Tally tracks which devices are in which block.
type Tally struct {
	mu      sync.RWMutex
	blocks  map[grid.BlockID]*blockState
	devices map[string]*deviceState

	events     int64
	stale      int64
	duplicates int64
	expired    int64
	updatedAt  time.Time
}

type blockState struct {
	entered int64
	left    int64
	expired int64
}

// deviceState is kept for devices that left the grid too (block nil), so a
// redelivered leave event is recognised.
type deviceState struct {
	block    *grid.BlockID
	lastSeen time.Time
}

// Outcome says what Apply did with an event.
type Outcome int

const (
	Applied Outcome = iota
	// Stale events are older than the last one seen for the device.
	Stale
	// Duplicate events repeat the last one seen, as Pub/Sub redelivery does.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// BlockCount is one block's row in a tally snapshot.
type BlockCount struct {
	Block     string   `json:"block"`
	Row       int      `json:"row"`
	Col       int      `json:"col"`
	Entered   int64    `json:"entered"`
	Left      int64    `json:"left"`
	Expired   int64    `json:"expired"`
	Occupancy int      `json:"occupancy"`
	Devices   []string `json:"devices"`
}

// Snapshot is a point-in-time copy of the tally.
type Snapshot struct {
	Blocks        []BlockCount `json:"blocks"`
	DevicesInGrid int          `json:"devicesInGrid"`
	Events        int64        `json:"events"`
	StaleEvents   int64        `json:"staleEvents"`
	Duplicates    int64        `json:"duplicateEvents"`
	Expired       int64        `json:"expired"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{
		blocks:  make(map[grid.BlockID]*blockState),
		devices: make(map[string]*deviceState),
	}
}

func (t *Tally) block(id grid.BlockID) *blockState {
	b, ok := t.blocks[id]
	if !ok {
		b = &blockState{}
		t.blocks[id] = b
	}
	return b
}

// Apply folds e into the tally. Events older than the last one seen for
// the same device, or repeating it, change nothing but their counter.
func (t *Tally) Apply(e events.BlockChanged) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events++
	dev, known := t.devices[e.DeviceID]
	if known {
		switch {
		case e.OccurredAt.Before(dev.lastSeen):
			t.stale++
			return Stale
		case e.OccurredAt.Equal(dev.lastSeen) && sameBlock(dev.block, e.To):
			t.duplicates++
			return Duplicate
		}
	}

	// The tally's own placement wins over e.From when events were lost.
	switch {
	case known:
		if dev.block != nil {
			t.block(*dev.block).left++
		}
	case e.From != nil:
		t.block(*e.From).left++
	}

	state := &deviceState{lastSeen: e.OccurredAt}
	if e.To != nil {
		to := *e.To
		t.block(to).entered++
		state.block = &to
	}
	t.devices[e.DeviceID] = state

	t.updatedAt = e.OccurredAt
	return Applied
}

func sameBlock(a, b *grid.BlockID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Expire removes devices not heard from since now-staleAfter and returns
// how many were removed from a block. Devices outside the grid are
// forgotten without being counted.
func (t *Tally) Expire(now time.Time, staleAfter time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-staleAfter)
	removed := 0
	for id, dev := range t.devices {
		if !dev.lastSeen.Before(cutoff) {
			continue
		}
		delete(t.devices, id)
		if dev.block == nil {
			continue
		}
		t.block(*dev.block).expired++
		removed++
	}
	t.expired += int64(removed)
	return removed
}

// DeviceBlock returns the block the device currently occupies.
func (t *Tally) DeviceBlock(deviceID string) (grid.BlockID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dev, ok := t.devices[deviceID]
	if !ok || dev.block == nil {
		return grid.BlockID{}, false
	}
	return *dev.block, true
}

// Snapshot returns a copy of the tally ordered by row then column.
func (t *Tally) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	occupants := make(map[grid.BlockID][]string)
	inGrid := 0
	for id, dev := range t.devices {
		if dev.block != nil {
			occupants[*dev.block] = append(occupants[*dev.block], id)
			inGrid++
		}
	}

	snap := Snapshot{
		Blocks:        make([]BlockCount, 0, len(t.blocks)),
		DevicesInGrid: inGrid,
		Events:        t.events,
		StaleEvents:   t.stale,
		Duplicates:    t.duplicates,
		Expired:       t.expired,
		UpdatedAt:     t.updatedAt,
	}
	for id, b := range t.blocks {
		devices := occupants[id]
		sort.Strings(devices)
		if devices == nil {
			devices = []string{}
		}
		snap.Blocks = append(snap.Blocks, BlockCount{
			Block:     id.String(),
			Row:       id.Row,
			Col:       id.Col,
			Entered:   b.entered,
			Left:      b.left,
			Expired:   b.expired,
			Occupancy: len(devices),
			Devices:   devices,
		})
	}
	sort.Slice(snap.Blocks, func(i, j int) bool {
		if snap.Blocks[i].Row != snap.Blocks[j].Row {
			return snap.Blocks[i].Row < snap.Blocks[j].Row
		}
		return snap.Blocks[i].Col < snap.Blocks[j].Col
	})
	return snap
}
