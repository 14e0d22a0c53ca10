package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without contacting the upstream while its
// breaker is open or its half-open probe quota is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ServerError is a 5xx answer. It counts against the breaker and is retried.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("upstream answered %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Options are the collaborators of a Client.
type Options struct {
	// Registry, when set, lists the client on /v1/ops/status.
	Registry *Registry

	// Logger reports breaker transitions.
	Logger zerolog.Logger

	// Transport replaces http.DefaultTransport, mostly for tests.
	Transport http.RoundTripper

	// OnStateChange is called after every breaker transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Client is an HTTP client for one named upstream.
type Client struct {
	name    string
	profile Profile
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]

	mu            sync.Mutex
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewClient builds a client for the named upstream and registers it.
func NewClient(name string, profile Profile, opts Options) *Client {
	if profile.Timeout <= 0 {
		profile.Timeout = 10 * time.Second
	}
	if profile.BackoffInitial <= 0 {
		profile.BackoffInitial = 100 * time.Millisecond
	}
	if profile.BackoffMax < profile.BackoffInitial {
		profile.BackoffMax = profile.BackoffInitial
	}

	log := opts.Logger
	onChange := func(name string, from, to gobreaker.State) {
		evt := log.Info()
		if to == gobreaker.StateOpen {
			evt = log.Warn()
		}
		evt.Str("upstream", name).
			Stringer("from", from).
			Stringer("to", to).
			Msg("circuit breaker state changed")
		if opts.OnStateChange != nil {
			opts.OnStateChange(name, from, to)
		}
	}

	c := &Client{
		name:    name,
		profile: profile,
		http:    &http.Client{Timeout: profile.Timeout, Transport: opts.Transport},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](profile.breakerSettings(name, onChange)),
	}
	if opts.Registry != nil {
		opts.Registry.Register(c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Do sends req through the breaker, retrying network errors and 5xx answers
// with exponential backoff. Bodies are replayed through req.GetBody.
//
// When every attempt ended in a 5xx, the last response is returned with a
// nil error so the caller can map the status itself.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.profile.BackoffInitial
	bo.MaxInterval = c.profile.BackoffMax
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(c.profile.Retries, 0))), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil {
			last.Body.Close()
		}
		last = resp
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		resp, err := c.attempt(ctx, req, attempt)
		if resp != nil {
			keep(resp)
		}
		return err
	}, policy)

	if err != nil {
		c.record(err)
		if last != nil && last.StatusCode >= http.StatusInternalServerError {
			return last, nil
		}
		if last != nil {
			last.Body.Close()
		}
		return nil, err
	}
	c.record(nil)
	return last, nil
}

func (c *Client) attempt(ctx context.Context, req *http.Request, n int) (*http.Response, error) {
	out := req.Clone(ctx)
	if n > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rewinding request body: %w", err))
		}
		out.Body = body
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by Do or the caller
		resp, err := c.http.Do(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &ServerError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, backoff.Permanent(ErrCircuitOpen)
	}
	return resp, err
}

func (c *Client) record(err error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastSuccessAt = &now
		return
	}
	c.lastFailureAt = &now
	c.lastError = err.Error()
}

// Health snapshots the breaker and the outcome of recent calls.
func (c *Client) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Health{
		Name:          c.name,
		State:         c.breaker.State(),
		Counts:        c.breaker.Counts(),
		LastSuccessAt: c.lastSuccessAt,
		LastFailureAt: c.lastFailureAt,
		LastError:     c.lastError,
	}
}
