package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	maxAttempts    = 5
	defaultBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrThrottled is returned when the service keeps answering 429.
var ErrThrottled = errors.New("rate limited by service")

// httpClient wraps http.Client with the service routes.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends the request built by build, retrying 429 answers with the
// server's Retry-After (capped). It returns the final status and body.
func (c *httpClient) do(ctx context.Context, build func() (*http.Request, error)) (int, []byte, int, error) {
	throttled := 0
	backoff := defaultBackoff
	for attempt := 1; ; attempt++ {
		req, err := build()
		if err != nil {
			return 0, nil, throttled, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return 0, nil, throttled, fmt.Errorf("request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return resp.StatusCode, nil, throttled, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp.StatusCode, body, throttled, nil
		}

		throttled++
		if attempt >= maxAttempts {
			return resp.StatusCode, body, throttled, ErrThrottled
		}
		wait := backoff
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		wait = min(wait, maxBackoff)
		backoff *= 2
		select {
		case <-ctx.Done():
			return resp.StatusCode, body, throttled, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *httpClient) get(ctx context.Context, path string) (int, []byte, int, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	})
}

func (c *httpClient) health(ctx context.Context) error {
	status, body, _, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	}
	return nil
}

// submit posts one submission and returns how many 429s it absorbed.
func (c *httpClient) submit(ctx context.Context, s Submission) (int, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal submission: %w", err)
	}
	status, body, throttled, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leaderboard", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return throttled, err
	}
	if status != http.StatusOK {
		return throttled, fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	}
	return throttled, nil
}

func (c *httpClient) rank(ctx context.Context, playerID string) (Standing, error) {
	status, body, _, err := c.get(ctx, "/leaderboard/rank/"+url.PathEscape(playerID))
	if err != nil {
		return Standing{}, err
	}
	if status != http.StatusOK {
		return Standing{}, fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	}
	var st Standing
	if err := json.Unmarshal(body, &st); err != nil {
		return Standing{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return st, nil
}

func (c *httpClient) top(ctx context.Context, n int) ([]Entry, error) {
	status, body, _, err := c.get(ctx, "/leaderboard/top?limit="+strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return entries, nil
}
