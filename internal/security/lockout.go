package security

import (
	"math"
	"time"
)

// LockoutPolicy is pure decision logic over an account's failed-attempt
// counter and lock-until timestamp. The check runs before password
// verification; the counter moves only after a mismatch, so a correct
// password against a locked account still comes back locked.
type LockoutPolicy struct {
	Threshold    int
	LockDuration time.Duration
}

func NewLockoutPolicy(threshold int, lockDuration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = 5
	}
	if lockDuration <= 0 {
		lockDuration = 30 * time.Minute
	}
	return LockoutPolicy{Threshold: threshold, LockDuration: lockDuration}
}

// Locked reports whether the account is currently locked and, if so, the
// remaining lock time in minutes rounded up.
func (p LockoutPolicy) Locked(lockedUntil *time.Time, now time.Time) (bool, int) {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return false, 0
	}
	remaining := int(math.Ceil(lockedUntil.Sub(now).Minutes()))
	if remaining < 1 {
		remaining = 1
	}
	return true, remaining
}

// ShouldLock reports whether the given post-increment failure count trips the
// lock.
func (p LockoutPolicy) ShouldLock(failedAttempts int) bool {
	return failedAttempts >= p.Threshold
}

// LockUntil returns the lock expiry for a lock starting now.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.LockDuration)
}
