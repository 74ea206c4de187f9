package esi

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a non-2xx response from ESI after retries are exhausted (or a
// non-retryable 4xx immediately).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esi: unexpected status %d: %s", e.StatusCode, e.Body)
}

// MailRateLimitedError is the mail-send "sending too fast" rejection. The
// server puts the wait inside the error body rather than a header, and it can
// be far larger than the normal backoff cap.
type MailRateLimitedError struct {
	RetryAfter time.Duration
}

func (e *MailRateLimitedError) Error() string {
	return fmt.Sprintf("esi: mail send rate limited, retry after %s", e.RetryAfter)
}

// AsMailRateLimited unwraps err into a MailRateLimitedError if it is one.
func AsMailRateLimited(err error) (*MailRateLimitedError, bool) {
	var mrl *MailRateLimitedError
	if errors.As(err, &mrl) {
		return mrl, true
	}
	return nil, false
}
