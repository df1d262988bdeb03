package steam

import (
	"net/http"
	"net/url"
	"time"

	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL overrides the inventory endpoint root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithProxy routes requests through an outbound proxy. Invalid URLs are
// reported by Open.
func WithProxy(raw string) Option {
	return func(c *Client) {
		c.proxyURL = raw
	}
}

// WithMaxAttempts sets the total HTTP attempts per Fetch.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the step between failed attempts; attempt i waits step*(i+1).
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// WithRateLimitStep sets the wait step after a 429; attempt i waits step*(i+1).
func WithRateLimitStep(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.rateLimitStep = d
		}
	}
}

// WithRequestTimeout bounds one HTTP attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithClock sets the clock used for retry waits.
func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		if cl != nil {
			c.clock = cl
		}
	}
}

// WithHTTPTransport replaces the transport built by Open.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errBadProxy}
	}
	return u, nil
}
