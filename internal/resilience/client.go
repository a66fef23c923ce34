package resilience

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without sending when the breaker refuses
	// the call.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded wraps the last transport error once retries
	// run out.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig configures a Client. Zero durations and a zero MaxRetries
// take the defaults of DefaultClientConfig.
type ClientConfig struct {
	// Name labels the breaker and the registry entry.
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	MaxRetries      uint64
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts, including waits a
	// server asks for with Retry-After.
	MaxInterval time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client and its call outcomes.
	Registry *Registry

	// OnRetry is called before each wait with the failure that caused it.
	OnRetry func(err error, wait time.Duration)
}

// DefaultClientConfig returns the defaults for a client named name.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &cb,
	}
}

// Client sends HTTP requests through a circuit breaker and retries
// transient failures with exponential backoff.
//
// 5xx responses and transport errors count against the breaker and are
// retried. 429 responses are retried after the server's Retry-After but do
// not count against the breaker: a throttling server is a healthy one.
// Other responses are returned as they are. When retries run out on a
// 5xx or 429 the last response is returned with a nil error so the caller
// can read it.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxInterval
	}

	cb := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cb = *cfg.CircuitBreaker
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](cb), //nolint:bodyclose // type parameter
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) State() gobreaker.State { return c.breaker.State() }

func (c *Client) Counts() gobreaker.Counts { return c.breaker.Counts() }

// Do sends req, retrying as described on Client. The request context
// bounds the whole exchange including waits. A body without GetBody is
// buffered once so every attempt resends it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := rewindable(req); err != nil {
		return nil, err
	}
	ctx := req.Context()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	bo := &hintedBackOff{
		BackOff: backoff.WithMaxRetries(exp, c.cfg.MaxRetries),
		max:     c.cfg.MaxInterval,
	}

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil && last != resp {
			discard(last)
		}
		last = resp
	}

	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // kept in last
			resp, err := c.send(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return resp, &ServerError{StatusCode: resp.StatusCode}
			}
			return resp, nil
		})
		if IsRejected(err) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			keep(resp)
		}
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			bo.hint = retryAfter(resp.Header.Get("Retry-After"), time.Now())
			return &ServerError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(bo, ctx), c.cfg.OnRetry)
	if err == nil {
		c.record(nil)
		return last, nil
	}
	c.record(err)

	switch {
	case ctx.Err() != nil:
		if last != nil {
			discard(last)
		}
		return nil, ctx.Err()
	case last != nil:
		return last, nil
	case errors.Is(err, ErrCircuitOpen):
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return c.http.Do(out)
}

func (c *Client) record(err error) {
	if c.cfg.Registry == nil {
		return
	}
	if err == nil {
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
		return
	}
	c.cfg.Registry.RecordFailure(c.cfg.Name, err)
}

// ServerError is a 5xx or 429 response treated as a failed attempt.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// hintedBackOff waits at least as long as the last Retry-After hint, up to
// max.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if hint := min(b.hint, b.max); hint > next {
		next = hint
	}
	b.hint = 0
	return next
}

// retryAfter parses a Retry-After value in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffering request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
