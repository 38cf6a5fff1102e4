// Package upstream fetches country data from the restcountries.com API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public restcountries v3.1 endpoint.
	DefaultBaseURL = "https://restcountries.com/v3.1"
	// DefaultTimeout bounds one fetch including limiter wait.
	DefaultTimeout = 5 * time.Second

	dialTimeout      = 3 * time.Second
	maxResponseBytes = 2 << 20
	userAgent        = "atlasgate/1.0"
)

var (
	// ErrNotFound is returned when the upstream has no match for a name.
	ErrNotFound = errors.New("upstream: no match")
	// ErrUnavailable is returned when the upstream errors, times out or
	// cannot be reached.
	ErrUnavailable = errors.New("upstream: unavailable")
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outbound requests per second. Zero disables the cap.
	RPS   float64
	Burst int
}

// Client fetches countries by name. It is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client with bounded timeouts.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		limiter: limiter,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   dialTimeout,
				ResponseHeaderTimeout: cfg.Timeout,
				MaxIdleConns:          20,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// FetchCountry looks a country up by name. When the upstream returns several
// matches, an exact case-insensitive match on the common name wins, otherwise
// the first result is used.
func (c *Client) FetchCountry(ctx context.Context, name string) (*RawCountry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
		}
	}

	endpoint := c.baseURL + "/name/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var matches []RawCountry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&matches); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	// Records without any name cannot be stored or looked up again.
	var first *RawCountry
	for i := range matches {
		if matches[i].DisplayName() == "" {
			continue
		}
		if strings.EqualFold(matches[i].Name.Common, name) {
			return &matches[i], nil
		}
		if first == nil {
			first = &matches[i]
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	return first, nil
}
