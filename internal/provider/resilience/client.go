package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without contacting the provider while its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a provider HTTP client. Zero durations and retry
// counts take the DefaultClientConfig values.
type ClientConfig struct {
	// Name identifies the provider in breaker logs and the health registry.
	Name string

	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first.
	MaxRetries uint64

	// InitialInterval and MaxInterval bound the exponential backoff between attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, registers the client and records every call outcome.
	Registry *Registry
}

// DefaultClientConfig returns the defaults for live arrival providers.
// Arrival data goes stale within seconds, so timeouts and retries stay short.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cb,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig(c.Name)
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.CircuitBreaker == nil {
		c.CircuitBreaker = d.CircuitBreaker
	}
	return c
}

// Client sends provider requests through a circuit breaker with bounded
// exponential-backoff retries. 5xx responses and transport errors are retried
// and count against the breaker; other responses are returned as-is.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a client and registers it with cfg.Registry, if any.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker), //nolint:bodyclose // type param, not response
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Do sends req under its own context. A 5xx that survives every retry is
// returned with a nil error so callers can inspect it; the caller closes the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context for every attempt.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.do(ctx, req)
	c.record(resp, err)
	return resp, err
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	// last holds the most recent response; superseded ones are closed.
	var last *http.Response
	keep := func(r *http.Response) {
		if last != nil {
			last.Body.Close()
		}
		last = r
	}

	attempt := func() (*http.Response, error) {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed via keep or by the caller
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			keep(resp)
		}
		return resp, err
	}

	resp, err := backoff.RetryWithData(attempt, c.backoff(ctx)) //nolint:bodyclose // returned to caller
	switch {
	case err == nil:
		return resp, nil
	case last != nil && !errors.Is(err, ErrCircuitOpen):
		return last, nil
	}
	keep(nil)
	return nil, err
}

func (c *Client) backoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)
}

func (c *Client) record(resp *http.Response, err error) {
	if c.cfg.Registry == nil {
		return
	}
	switch {
	case err != nil:
		c.cfg.Registry.RecordFailure(c.cfg.Name, err)
	case resp.StatusCode >= 500:
		c.cfg.Registry.RecordFailure(c.cfg.Name, &ServerError{StatusCode: resp.StatusCode})
	default:
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
	}
}

// ServerError is a 5xx provider response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker counts for the current generation.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
