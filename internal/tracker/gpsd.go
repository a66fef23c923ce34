package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/locator"
)

// DefaultGPSDAddr is where gpsd listens by default.
const DefaultGPSDAddr = "127.0.0.1:2947"

const gpsdWatch = "?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"

type gpsdClass struct {
	Class string `json:"class"`
}

// gpsdTPV is the subset of a gpsd TPV report the tracker uses. With
// scaled=true distances are meters.
type gpsdTPV struct {
	Mode   *int     `json:"mode"`
	Time   string   `json:"time"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
	Epx    *float64 `json:"epx"`
	Epy    *float64 `json:"epy"`
	Eph    *float64 `json:"eph"`
}

// parseGPSDLine turns a gpsd JSON line into a fix. ok is false for non-TPV
// reports and for TPV reports without a 2D or 3D fix.
func parseGPSDLine(line []byte, now time.Time) (fix locator.Fix, ok bool, err error) {
	var base gpsdClass
	if err := json.Unmarshal(line, &base); err != nil {
		return locator.Fix{}, false, fmt.Errorf("gpsd json parse: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(base.Class), "TPV") {
		return locator.Fix{}, false, nil
	}

	var tpv gpsdTPV
	if err := json.Unmarshal(line, &tpv); err != nil {
		return locator.Fix{}, false, fmt.Errorf("gpsd tpv parse: %w", err)
	}
	if tpv.Mode == nil || *tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return locator.Fix{}, false, nil
	}

	fix = locator.Fix{Lat: *tpv.Lat, Lon: *tpv.Lon, RecordedAt: now.UTC()}
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tpv.Time)); err == nil {
		fix.RecordedAt = t.UTC()
	}

	switch {
	case tpv.Eph != nil:
		v := *tpv.Eph
		fix.Accuracy = &v
	case tpv.Epx != nil && tpv.Epy != nil:
		v := math.Sqrt((*tpv.Epx)*(*tpv.Epx) + (*tpv.Epy)*(*tpv.Epy))
		fix.Accuracy = &v
	}

	alt := tpv.AltMSL
	if alt == nil {
		alt = tpv.Alt
	}
	if alt != nil && *tpv.Mode >= 3 {
		v := *alt
		fix.Altitude = &v
	}
	return fix, true, nil
}

// GPSDSource streams fixes from a gpsd daemon. It reconnects with
// exponential backoff and only keeps the newest fix, so a slow consumer
// never reads a stale position.
type GPSDSource struct {
	addr   string
	logger zerolog.Logger

	mu     sync.Mutex
	latest *locator.Fix
	notify chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGPSDSource starts streaming from addr.
func NewGPSDSource(ctx context.Context, addr string, logger zerolog.Logger) *GPSDSource {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &GPSDSource{
		addr:   addr,
		logger: logger.With().Str("component", "gpsd").Str("addr", addr).Logger(),
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Next returns the newest fix not yet returned.
func (s *GPSDSource) Next(ctx context.Context) (locator.Fix, error) {
	for {
		s.mu.Lock()
		if s.latest != nil {
			fix := *s.latest
			s.latest = nil
			s.mu.Unlock()
			return fix, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return locator.Fix{}, ctx.Err()
		case <-s.done:
			return locator.Fix{}, ErrSourceExhausted
		case <-s.notify:
		}
	}
}

// Close stops the reader.
func (s *GPSDSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *GPSDSource) run(ctx context.Context) {
	defer close(s.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		err := s.stream(ctx, bo)
		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		s.logger.Warn().Err(err).Dur("retry_in", wait).Msg("gpsd connection lost")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *GPSDSource) stream(ctx context.Context, bo backoff.BackOff) error {
	d := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte(gpsdWatch)); err != nil {
		return fmt.Errorf("gpsd watch: %w", err)
	}
	s.logger.Info().Msg("connected to gpsd")

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fix, ok, err := parseGPSDLine(sc.Bytes(), time.Now())
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping gpsd line")
			continue
		}
		if !ok {
			continue
		}
		bo.Reset()
		s.publish(fix)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("gpsd closed the connection")
}

func (s *GPSDSource) publish(fix locator.Fix) {
	s.mu.Lock()
	s.latest = &fix
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

var _ Source = (*GPSDSource)(nil)
