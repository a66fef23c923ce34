package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/internal/resilience"
)

// Reporter errors.
var (
	// ErrUndelivered means the fix may be retried later.
	ErrUndelivered = errors.New("fix not delivered")

	// ErrRejected means the API refused the fix; retrying will not help.
	ErrRejected = errors.New("fix rejected")
)

// Delivery is the API's answer to a reported fix.
type Delivery struct {
	Summary string
	Changed bool
	Advice  poll.Advice
}

// Reporter sends fixes to the API.
type Reporter interface {
	Report(ctx context.Context, fix locator.Fix) (*Delivery, error)
}

// HTTPReporter posts fixes to /v1/devices/{deviceId}/fixes.
type HTTPReporter struct {
	client   *resilience.Client
	endpoint string
	token    string
}

// HTTPReporterConfig configures an HTTPReporter.
type HTTPReporterConfig struct {
	BaseURL  string
	DeviceID string
	Token    string
	Client   *resilience.Client
}

// NewHTTPReporter creates a reporter. A nil Client gets a default
// resilient client named "bbagrid-api".
func NewHTTPReporter(cfg HTTPReporterConfig) (*HTTPReporter, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("tracker: device id is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("tracker: invalid api url %q", cfg.BaseURL)
	}

	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig("bbagrid-api"))
	}

	return &HTTPReporter{
		client:   client,
		endpoint: base.String() + "/v1/devices/" + url.PathEscape(cfg.DeviceID) + "/fixes",
		token:    cfg.Token,
	}, nil
}

// Report posts fix and decodes the API's poll advice.
func (r *HTTPReporter) Report(ctx context.Context, fix locator.Fix) (*Delivery, error) {
	lat, lon := fix.Lat, fix.Lon
	ts := models.Timestamp(fix.RecordedAt)
	body, err := json.Marshal(models.FixRequest{
		Lat:        &lat,
		Lon:        &lon,
		Accuracy:   fix.Accuracy,
		Altitude:   fix.Altitude,
		RecordedAt: &ts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode fix: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndelivered, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUndelivered, resp.StatusCode)
	case resp.StatusCode >= 400:
		var problem models.Problem
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, problem.Detail)
	}

	var out models.FixResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrUndelivered, err)
	}

	return &Delivery{
		Summary: out.Report.Summary,
		Changed: out.Changed,
		Advice: poll.Advice{
			Interval:          time.Duration(out.Report.Poll.IntervalMs) * time.Millisecond,
			MinDistanceChange: out.Report.Poll.MinDistanceChange,
		},
	}, nil
}

var _ Reporter = (*HTTPReporter)(nil)
