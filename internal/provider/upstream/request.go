package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// envelope is the wrapper every endpoint responds with.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	ErrorCode any             `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
}

func (e envelope) code() string {
	if e.ErrorCode == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(e.ErrorCode))
}

func (e envelope) rateLimited() bool {
	code := strings.ToUpper(e.code())
	if code == "429" || code == "RATE_LIMITED" || code == "TOO_MANY_REQUESTS" {
		return true
	}
	return strings.Contains(strings.ToLower(e.ErrorMsg), "rate limit")
}

// emptyData reports whether a success envelope carried nothing usable.
func (e envelope) emptyData() bool {
	d := strings.TrimSpace(string(e.Data))
	return d == "" || d == "null" || d == "[]" || d == "{}"
}

// get performs a GET on path and returns the envelope's data payload.
// Every failure comes back as a *provider.FetchError.
func (c *Client) get(ctx context.Context, op, id, path string, query url.Values) (json.RawMessage, error) {
	u := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, provider.NewError(provider.KindUpstreamUnavailable, op, id, fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewError(provider.KindTimeout, op, id, fmt.Errorf("performing request: %w", err))
		}
		return nil, provider.NewError(provider.KindUpstreamUnavailable, op, id, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, provider.NewError(provider.KindRateLimited, op, id, fmt.Errorf("status %d", res.StatusCode))
	case res.StatusCode == http.StatusNotFound:
		return nil, provider.NewError(provider.KindNoDataAvailable, op, id, fmt.Errorf("status %d", res.StatusCode))
	case res.StatusCode < 200 || res.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, provider.NewError(provider.KindUpstreamUnavailable, op, id, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b))))
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(provider.KindTimeout, op, id, fmt.Errorf("decoding response: %w", err))
		}
		return nil, provider.NewError(provider.KindUpstreamUnavailable, op, id, fmt.Errorf("decoding response: %w", err))
	}
	if !env.Success {
		cause := fmt.Errorf("provider error: code=%s msg=%q", env.code(), env.ErrorMsg)
		if env.rateLimited() {
			return nil, provider.NewError(provider.KindRateLimited, op, id, cause)
		}
		return nil, provider.NewError(provider.KindUpstreamUnavailable, op, id, cause)
	}
	if env.emptyData() {
		return nil, provider.NewError(provider.KindNoDataAvailable, op, id, errors.New("empty payload"))
	}
	return env.Data, nil
}
