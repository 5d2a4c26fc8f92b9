// Package httpclient implements C1: one shared, configured HTTP client with
// retry middleware and proxy-mode resolution. It is grounded on the
// teacher's cmd/nhentai/internal/nhenapi.NhenClient, generalized from a
// single-site header/proxy wrapper into the engine-wide client the rest of
// the components share.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sirzenith/galleryvault/common"
)

// ProxyMode mirrors Config.ProxyMode (spec §3).
type ProxyMode string

const (
	ProxyModeSystem ProxyMode = "system"
	ProxyModeNone   ProxyMode = "no_proxy"
	ProxyModeCustom ProxyMode = "custom"
)

const (
	connectTimeout = 10 * time.Second
	bodyTimeout    = 60 * time.Second

	retryBaseDelay = 500 * time.Millisecond
	retryFactor    = 2.0
	maxRetries     = 3
)

// state is the part of a Client that Rebuild swaps out wholesale: the
// transport and the header set it was configured with.
type state struct {
	inner   *http.Client
	headers map[string]string
}

// Client is the single shared HTTP client used by every component that
// talks to the site. Every component is handed the same *Client pointer at
// startup and keeps it for the engine's lifetime; Rebuild swaps the
// underlying state atomically so a config change reaches every holder of
// that pointer without any component needing to be reconstructed (spec
// §4.1 "the client is rebuilt", §5 "replaced wholesale on config change").
// In-flight requests keep using the transport they already picked up.
type Client struct {
	state atomic.Pointer[state]
}

// Options configures how the shared client's transport is built.
type Options struct {
	ProxyMode  ProxyMode
	ProxyHost  string
	ProxyPort  int
	Timeout    time.Duration
	Headers    map[string]string
}

// New builds a Client from opts, same responsibility as NhenClient.SetProxy
// in the teacher but switched on the engine's three-way proxy mode instead
// of a pair of raw proxy URL strings.
func New(opts Options) *Client {
	c := &Client{}
	c.Rebuild(opts)
	return c
}

// Rebuild swaps c's transport and headers in place, so every component
// holding this *Client sees the new configuration on its next request.
func (c *Client) Rebuild(opts Options) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy:       proxyFuncFor(opts),
		DialContext: dialer.DialContext,
	}

	inner := &http.Client{
		Transport: transport,
		Timeout:   common.GetDurationOr(opts.Timeout, bodyTimeout),
	}

	headers := map[string]string{}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	c.state.Store(&state{inner: inner, headers: headers})
}

func proxyFuncFor(opts Options) func(*http.Request) (*url.URL, error) {
	switch opts.ProxyMode {
	case ProxyModeNone:
		return func(*http.Request) (*url.URL, error) { return nil, nil }
	case ProxyModeCustom:
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", opts.ProxyHost, opts.ProxyPort),
		}
		return func(*http.Request) (*url.URL, error) { return proxyURL, nil }
	case ProxyModeSystem:
		fallthrough
	default:
		return http.ProxyFromEnvironment
	}
}

// Do issues method against rawURL with retry middleware: transport errors
// and 5xx responses are retried up to maxRetries times with exponential
// backoff and jitter (spec §4.1). ctx governs cancellation for every
// suspension point, wired to the request so cancelling it unblocks an
// in-flight body read (spec §5).
func (c *Client) Do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		st := c.state.Load()

		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %s", rawURL, err)
		}
		for name, value := range st.headers {
			req.Header.Set(name, value)
		}

		resp, err := st.inner.Do(req)
		if err != nil {
			lastErr = err
			log.Debugf("request to %s failed (attempt %d/%d): %s", rawURL, attempt+1, maxRetries+1, err)
			continue
		}

		if resp.StatusCode >= 500 && attempt < maxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %s", rawURL, maxRetries+1, lastErr)
}

// backoffDelay returns the exponential-backoff-with-jitter delay before
// retry number attempt (1-based).
func backoffDelay(attempt int) time.Duration {
	base := float64(retryBaseDelay)
	for i := 1; i < attempt; i++ {
		base *= retryFactor
	}
	jitter := base * 0.25 * rand.Float64()
	return time.Duration(base + jitter)
}

// Get is a convenience wrapper around Do for the common case.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil)
}

// GetRange issues a byte-range GET, used by the search engine to fetch
// B-tree nodes and posting lists without downloading the full index file
// (spec §4.4).
func (c *Client) GetRange(ctx context.Context, rawURL string, offset, length int64) (*http.Response, error) {
	st := c.state.Load()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build range request for %s: %s", rawURL, err)
	}
	for name, value := range st.headers {
		req.Header.Set(name, value)
	}
	if length > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := st.inner.Do(req)
	if err != nil {
		return nil, fmt.Errorf("range request to %s failed: %s", rawURL, err)
	}
	return resp, nil
}
