package clientsdk

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

// Client talks to the resource API and the auth API of the backend.
type Client struct {
	BaseURL     string
	AuthBaseURL string
	HTTPClient  *http.Client

	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Use it to install a
// BearerTransport or a logging transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the current HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests to perSecond with the given
// burst. Calls block until a token is available or the context ends. A
// non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a client for the given base URLs. Trailing slashes are
// trimmed so paths can be appended verbatim.
func NewClient(baseURL, authBaseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		AuthBaseURL: strings.TrimSuffix(authBaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}
