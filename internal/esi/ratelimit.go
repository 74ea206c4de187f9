package esi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Throttle thresholds. ESI exposes two independent signals: the legacy error
// budget (X-ESI-Error-Limit-Remain, a rolling count of allowed error
// responses) and the token-bucket rate limit (X-Ratelimit-Remaining/-Limit,
// where 4xx responses cost more tokens than 2xx/3xx and 5xx cost none). Both
// must clear before the next call goes out; going over either risks a ban.
const (
	errorLimitLow      = 20
	errorLimitCritical = 5

	bucketLowPct      = 0.25
	bucketCriticalPct = 0.10

	throttleShortDelay = 2 * time.Second
	throttleLongDelay  = 10 * time.Second
)

// throttleState is the process-wide view of ESI's throttle signals. It must
// be shared by every caller: a second unsynchronized copy would under-throttle.
type throttleState struct {
	mu sync.Mutex

	errorRemain int
	errorSeen   bool

	bucketRemaining int
	bucketLimit     int
	bucketSeen      bool

	// Explicit server wait from a 429 Retry-After; consumed exactly once.
	retryAfter time.Time
}

func newThrottleState() *throttleState {
	return &throttleState{}
}

// observe updates the throttle signals from response headers.
func (s *throttleState) observe(resp *http.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := resp.Header.Get("X-ESI-Error-Limit-Remain"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.errorRemain = n
			s.errorSeen = true
		}
	}
	if rem := resp.Header.Get("X-Ratelimit-Remaining"); rem != "" {
		if lim := resp.Header.Get("X-Ratelimit-Limit"); lim != "" {
			n, err1 := strconv.Atoi(rem)
			l, err2 := strconv.Atoi(lim)
			if err1 == nil && err2 == nil && l > 0 {
				s.bucketRemaining = n
				s.bucketLimit = l
				s.bucketSeen = true
			}
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				s.retryAfter = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
	}
}

// delayBeforeNext returns how long the next call must wait. A pending 429 wait
// overrides both throttle signals and is cleared by this call.
func (s *throttleState) delayBeforeNext(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.retryAfter.IsZero() {
		wait := s.retryAfter.Sub(now)
		s.retryAfter = time.Time{}
		if wait > 0 {
			return wait
		}
	}

	var delay time.Duration
	if s.errorSeen {
		switch {
		case s.errorRemain <= errorLimitCritical:
			delay = throttleLongDelay
		case s.errorRemain <= errorLimitLow:
			delay = throttleShortDelay
		}
	}
	if s.bucketSeen {
		pct := float64(s.bucketRemaining) / float64(s.bucketLimit)
		switch {
		case pct <= bucketCriticalPct:
			if throttleLongDelay > delay {
				delay = throttleLongDelay
			}
		case pct <= bucketLowPct:
			if throttleShortDelay > delay {
				delay = throttleShortDelay
			}
		}
	}
	return delay
}
