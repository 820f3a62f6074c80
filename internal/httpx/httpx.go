package httpx

import (
	"net"
	"net/http"
	"time"
)

// Client is a small wrapper around http.Client with pooled transport
// defaults and a fixed set of headers. It satisfies upstream.HTTPClient.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// New returns a Client whose requests are cut off after timeout. A zero
// timeout leaves deadlines to the request context.
func New(timeout time.Duration, userAgent string) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if userAgent == "" {
		userAgent = "marketdata-sync/1.0"
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: userAgent}
}

// Do sends req, filling in the user agent and any configured header the
// request does not already carry. Cancellation comes from req's context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
