// Package httpclient is the single outbound HTTP surface of the backend.
// Every component talks to the network through one Client, which applies
// per-destination-class policy: internal services (PDF parser, stores) get
// short timeouts and no proxy; external hosts (publisher APIs, PDF mirrors)
// get the configured proxy, longer timeouts, retries, and an SSRF guard.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
)

// DestClass selects the outbound policy for a request.
type DestClass string

const (
	Internal DestClass = "internal"
	External DestClass = "external"
)

type Options struct {
	InternalTimeout time.Duration // default 10s
	ExternalTimeout time.Duration // default 30s
	ExternalProxy   string
	MaxRetries      int           // default 3
	RetryBaseDelay  time.Duration // default 1s
}

type Client struct {
	internal   *http.Client
	external   *http.Client
	maxRetries int
	retryBase  time.Duration
	log        *logrus.Entry

	// OnResult, when set, observes every finished request (for metrics).
	OnResult func(dest DestClass, status int, err error)

	checkExternal func(string) error
}

func New(opts Options) *Client {
	if opts.InternalTimeout == 0 {
		opts.InternalTimeout = 10 * time.Second
	}
	if opts.ExternalTimeout == 0 {
		opts.ExternalTimeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Second
	}

	internalTransport := &http.Transport{
		Proxy:               nil,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	externalTransport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         guardedDialContext,
	}
	if opts.ExternalProxy != "" {
		if proxyURL, err := url.Parse(opts.ExternalProxy); err == nil {
			externalTransport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Client{
		internal:      &http.Client{Timeout: opts.InternalTimeout, Transport: internalTransport},
		external:      &http.Client{Timeout: opts.ExternalTimeout, Transport: externalTransport},
		maxRetries:    opts.MaxRetries,
		retryBase:     opts.RetryBaseDelay,
		log:           logrus.WithField("component", "httpclient"),
		checkExternal: CheckURL,
	}
}

// Do issues one request under the destination class policy. Internal requests
// fail fast; external requests are retried on 408, 429, 5xx and connection
// errors with exponential backoff. Non-retryable statuses are returned as-is
// for the caller to inspect. The body, if any, must be replayable, hence
// bytes rather than a reader.
func (c *Client) Do(ctx context.Context, dest DestClass, method, rawURL string, headers http.Header, body []byte) (*http.Response, error) {
	if dest == External {
		if err := c.checkExternal(rawURL); err != nil {
			c.observe(dest, 0, err)
			return nil, err
		}
	}

	httpClient := c.internal
	retries := 0
	if dest == External {
		httpClient = c.external
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := newRequest(ctx, method, rawURL, headers, reader)
		if err != nil {
			return nil, domain.Ef(domain.KindInvalidInput, err, "build request for %s", rawURL)
		}

		resp, err := httpClient.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			c.observe(dest, resp.StatusCode, nil)
			return resp, nil
		}

		if err != nil {
			lastErr = classifyTransportError(err, rawURL)
		} else {
			lastErr = domain.E(domain.KindProviderUnavailable,
				fmt.Sprintf("%s returned status %d", req.URL.Host, resp.StatusCode))
		}

		if attempt >= retries {
			if err == nil {
				// Exhausted retries on a bad status: hand the last
				// response back so the caller can read the body.
				c.observe(dest, resp.StatusCode, nil)
				return resp, nil
			}
			c.observe(dest, 0, lastErr)
			return nil, lastErr
		}

		if err == nil {
			drainAndClose(resp)
		}

		backoff := c.retryBase << uint(attempt)
		c.log.WithFields(logrus.Fields{
			"url":     rawURL,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).Debug("retrying outbound request")

		select {
		case <-ctx.Done():
			err := domain.Ef(domain.KindCancelled, ctx.Err(), "request to %s cancelled", rawURL)
			c.observe(dest, 0, err)
			return nil, err
		case <-time.After(backoff):
		}
	}
}

// Get is shorthand for a bodyless GET.
func (c *Client) Get(ctx context.Context, dest DestClass, rawURL string, headers http.Header) (*http.Response, error) {
	return c.Do(ctx, dest, http.MethodGet, rawURL, headers, nil)
}

func (c *Client) observe(dest DestClass, status int, err error) {
	if c.OnResult != nil {
		c.OnResult(dest, status, err)
	}
}

func newRequest(ctx context.Context, method, rawURL string, headers http.Header, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, nil)
	}
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func classifyTransportError(err error, rawURL string) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.Ef(domain.KindNetwork, err, "dns lookup failed for %s", rawURL)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Ef(domain.KindTimeout, err, "request to %s timed out", rawURL)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Ef(domain.KindTimeout, err, "request to %s timed out", rawURL)
	}
	if errors.Is(err, errBlockedAddress) {
		return domain.Ef(domain.KindSSRFBlocked, err, "refusing to dial private address for %s", rawURL)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return domain.Ef(domain.KindNetwork, err, "connection to %s failed", rawURL)
	}
	return domain.Ef(domain.KindNetwork, err, "request to %s failed", rawURL)
}

var errBlockedAddress = errors.New("destination resolves to a private address")

// CheckURL rejects external URLs whose literal host is private before any
// dial happens. Hostnames that resolve to private addresses are caught a
// second time at dial by guardedDialContext, closing the DNS-rebind hole.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.Ef(domain.KindInvalidInput, err, "parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.E(domain.KindUnsupportedSource, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return domain.E(domain.KindInvalidInput, "url has no host")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return domain.E(domain.KindSSRFBlocked, fmt.Sprintf("address %s is not routable externally", host))
	}
	if host == "localhost" {
		return domain.E(domain.KindSSRFBlocked, "localhost is not an external destination")
	}
	return nil
}

func guardedDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return nil, fmt.Errorf("%s: %w", host, errBlockedAddress)
		}
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
