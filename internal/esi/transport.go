package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxAttempts    = 5
	backoffBase    = 500 * time.Millisecond
	backoffCap     = 30 * time.Second
	mailWaitCap    = 2 * time.Hour
	defaultTimeout = 20 * time.Second
)

// mailThrottlePattern matches the wait embedded in the mail-send rejection
// body, e.g. {"error": "mail sending too fast, try again in 3605 seconds"}.
var mailThrottlePattern = regexp.MustCompile(`try again in (\d+)(?:\.\d+)? seconds`)

// Transport is the single choke point for every ESI call. It owns the
// process-wide throttle state, applies the two-tier delay policy before each
// request, and retries transient failures with bounded exponential backoff.
// Construct exactly one per process and share it.
type Transport struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
	state      *throttleState

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransport creates the shared ESI transport.
func NewTransport(baseURL, token string, logger *slog.Logger, httpClient *http.Client) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Transport{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		logger:     logger.With("component", "esi_transport"),
		state:      newThrottleState(),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do performs one ESI call, decoding the JSON response into out (if non-nil).
// Retries cover network failures, 5xx and 429/420; all other 4xx fail
// immediately, except the mail-send throttle rejection which is surfaced as
// *MailRateLimitedError with the server's wait.
func (t *Transport) Do(ctx context.Context, method, path string, query url.Values, reqBody any, out any) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("esi: failed to marshal request body for %s: %w", path, err)
		}
	}

	fullURL := t.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if wait := t.state.delayBeforeNext(time.Now()); wait > 0 {
			t.logger.DebugContext(ctx, "throttling before ESI call", "path", path, "wait", wait.String())
			throttleWaitSeconds.Add(wait.Seconds())
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}

		retryable, err := t.doOnce(ctx, method, fullURL, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}

		if attempt < maxAttempts {
			backoff := backoffBase << (attempt - 1)
			if backoff > backoffCap {
				backoff = backoffCap
			}
			t.logger.WarnContext(ctx, "ESI call failed, retrying", "path", path, "attempt", attempt, "backoff", backoff.String(), "error", err)
			if err := t.sleep(ctx, backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("esi: %s %s exhausted %d attempts: %w", method, path, maxAttempts, lastErr)
}

// doOnce executes a single attempt. The bool reports whether the failure is
// retryable.
func (t *Transport) doOnce(ctx context.Context, method, fullURL, path string, bodyBytes []byte, out any) (bool, error) {
	var reqReader io.Reader
	if bodyBytes != nil {
		reqReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqReader)
	if err != nil {
		return false, fmt.Errorf("esi: failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	timer := prometheus.NewTimer(requestDurationHist.WithLabelValues(method))
	resp, err := t.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		return true, fmt.Errorf("esi: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	t.state.observe(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("esi: failed to read response from %s: %w", path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return false, fmt.Errorf("esi: failed to decode response from %s: %w", path, err)
			}
		}
		return false, nil

	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == 420:
		return true, &APIError{StatusCode: resp.StatusCode, Body: truncate(respBody)}

	default:
		// The mail-send throttle rejection is a 4xx whose wait lives in the
		// body. It can vastly exceed the backoff cap, so it gets its own
		// (larger) cap and is handed back to the caller instead of retried.
		if wait, ok := parseMailThrottle(respBody); ok {
			return false, &MailRateLimitedError{RetryAfter: wait}
		}
		return false, &APIError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}
}

func parseMailThrottle(body []byte) (time.Duration, bool) {
	m := mailThrottlePattern.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	wait := time.Duration(secs) * time.Second
	if wait > mailWaitCap {
		wait = mailWaitCap
	}
	return wait, true
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
