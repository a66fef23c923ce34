package tracker

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bbagrid/bbagrid/internal/locator"
)

// ReplaySource returns a fixed list of fixes in order. It is used for
// demos, field-test playback and tests.
type ReplaySource struct {
	fixes []locator.Fix
	next  int
	now   func() time.Time
}

// replayFile is the YAML layout of a replay file.
type replayFile struct {
	Fixes []struct {
		Lat      float64   `yaml:"lat"`
		Lon      float64   `yaml:"lon"`
		Accuracy *float64  `yaml:"accuracy,omitempty"`
		Altitude *float64  `yaml:"altitude,omitempty"`
		Time     time.Time `yaml:"time,omitempty"`
	} `yaml:"fixes"`
}

// NewReplaySource replays fixes. Fixes without a timestamp are stamped
// when they are returned.
func NewReplaySource(fixes []locator.Fix) *ReplaySource {
	return &ReplaySource{fixes: fixes, now: time.Now}
}

// DecodeReplay reads a YAML replay file.
func DecodeReplay(r io.Reader) (*ReplaySource, error) {
	var f replayFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	fixes := make([]locator.Fix, 0, len(f.Fixes))
	for _, x := range f.Fixes {
		fixes = append(fixes, locator.Fix{
			Lat:        x.Lat,
			Lon:        x.Lon,
			Accuracy:   x.Accuracy,
			Altitude:   x.Altitude,
			RecordedAt: x.Time,
		})
	}
	return NewReplaySource(fixes), nil
}

// LoadReplay opens and decodes a replay file.
func LoadReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()
	return DecodeReplay(f)
}

// Next returns the next fix or ErrSourceExhausted.
func (s *ReplaySource) Next(ctx context.Context) (locator.Fix, error) {
	if err := ctx.Err(); err != nil {
		return locator.Fix{}, err
	}
	if s.next >= len(s.fixes) {
		return locator.Fix{}, ErrSourceExhausted
	}
	fix := s.fixes[s.next]
	s.next++
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = s.now().UTC()
	}
	return fix, nil
}

// Len is the number of fixes in the replay.
func (s *ReplaySource) Len() int {
	return len(s.fixes)
}

// Close is a no-op.
func (s *ReplaySource) Close() error {
	return nil
}

var _ Source = (*ReplaySource)(nil)
