// Package api is the client for the PKUHole service. Every exported method
// performs exactly one request and blocks until it has completed.
package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkuhole/config"
	"pkuhole/models"
)

// Options configures a Client. Zero values fall back to the defaults of the
// config package, except RateLimiter, which is disabled when nil.
type Options struct {
	// BaseURL is scheme://host[:port] of the service.
	BaseURL string
	// Host is sent as the Host header. Defaults to the host of BaseURL.
	Host       string
	HTTPClient *http.Client
	// Timeout bounds each request including reading the body. Negative disables it.
	Timeout time.Duration
	// NoRedirects reports 3xx responses as TransportError instead of following them.
	NoRedirects bool
	RateLimiter *models.RateLimiter
	Logger      *slog.Logger
}

// Client talks to one PKUHole server. It holds no per-session state and is
// safe for concurrent use.
type Client struct {
	baseURL string
	host    string
	hc      *http.Client
	timeout time.Duration
	limiter *models.RateLimiter
	logger  *slog.Logger
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = config.DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: need http(s)://host", base)
	}

	host := opts.Host
	if host == "" {
		host = u.Host
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout, _ = time.ParseDuration(config.DefaultTimeout)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.NoRedirects {
		c := *hc
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		hc = &c
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL: u.Scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/"),
		host:    host,
		hc:      hc,
		timeout: timeout,
		limiter: opts.RateLimiter,
		logger:  logger.With("component", "api"),
	}, nil
}
