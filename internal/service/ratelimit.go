package service

import "time"

// Decision is the outcome of a refresh rate-limit check
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// RemainingSeconds is the wait shown to the user
func (d Decision) RemainingSeconds() int64 {
	return int64(d.Remaining / time.Second)
}

// RefreshRateLimiter enforces a cooldown between the moment a refresh button
// was issued and the moment it is pressed. It keeps no state.
type RefreshRateLimiter struct {
	cooldown time.Duration
}

// NewRefreshRateLimiter creates a limiter with the given cooldown
func NewRefreshRateLimiter(cooldown time.Duration) *RefreshRateLimiter {
	return &RefreshRateLimiter{cooldown: cooldown}
}

// Check compares whole seconds, matching the unix timestamp in the button data
func (l *RefreshRateLimiter) Check(requestedAt, now time.Time) Decision {
	cooldown := int64(l.cooldown / time.Second)
	elapsed := now.Unix() - requestedAt.Unix()
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}

	remaining := cooldown - elapsed
	if remaining > cooldown {
		remaining = cooldown
	}
	return Decision{Remaining: time.Duration(remaining) * time.Second}
}
