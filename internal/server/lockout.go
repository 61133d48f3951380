// lockout.go - Account lockout to slow down brute-forcing of the gate
package server

import (
	"sync"
	"time"
)

// maxTrackedUsers bounds the attempt table; past it, stale entries are
// pruned on the next failure.
const maxTrackedUsers = 4096

// LoginAttempt tracks failed attempts for a user name
type LoginAttempt struct {
	Count       int
	LastAttempt time.Time
	LockedUntil time.Time
}

// AccountLockout locks a user name after repeated failed attempts
type AccountLockout struct {
	mu              sync.RWMutex
	attempts        map[string]*LoginAttempt // username -> attempts
	maxAttempts     int
	lockoutDuration time.Duration
	windowDuration  time.Duration
	now             func() time.Time
}

// NewAccountLockout creates a new account lockout manager
// maxAttempts: number of failed attempts before lockout (e.g., 5)
// lockoutDuration: how long to lock the account (e.g., 15 minutes)
// windowDuration: time window to count attempts (e.g., 10 minutes)
func NewAccountLockout(maxAttempts int, lockoutDuration, windowDuration time.Duration) *AccountLockout {
	return &AccountLockout{
		attempts:        make(map[string]*LoginAttempt),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		windowDuration:  windowDuration,
		now:             time.Now,
	}
}

// RecordFailedAttempt records a failed attempt and reports whether the user
// is now locked
func (al *AccountLockout) RecordFailedAttempt(username string) (locked bool, lockedUntil time.Time) {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()

	attempt, exists := al.attempts[username]
	if !exists {
		if len(al.attempts) >= maxTrackedUsers {
			al.pruneLocked(now)
		}
		attempt = &LoginAttempt{}
		al.attempts[username] = attempt
	}

	// An expired lock starts a fresh count.
	if expired(attempt, now) || now.Sub(attempt.LastAttempt) > al.windowDuration {
		attempt.Count = 0
		attempt.LockedUntil = time.Time{}
	}

	attempt.Count++
	attempt.LastAttempt = now

	if attempt.Count >= al.maxAttempts {
		attempt.LockedUntil = now.Add(al.lockoutDuration)
		return true, attempt.LockedUntil
	}

	return false, time.Time{}
}

// RecordSuccessfulLogin resets failed attempts for a username
func (al *AccountLockout) RecordSuccessfulLogin(username string) {
	al.mu.Lock()
	defer al.mu.Unlock()

	delete(al.attempts, username)
}

// IsLocked checks if a user is currently locked
// Returns true if locked, the unlock time and the attempts left otherwise
func (al *AccountLockout) IsLocked(username string) (locked bool, lockedUntil time.Time, attemptsRemaining int) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	attempt, exists := al.attempts[username]
	if !exists {
		return false, time.Time{}, al.maxAttempts
	}

	now := al.now()

	if !attempt.LockedUntil.IsZero() && now.Before(attempt.LockedUntil) {
		return true, attempt.LockedUntil, 0
	}

	if expired(attempt, now) || now.Sub(attempt.LastAttempt) > al.windowDuration {
		return false, time.Time{}, al.maxAttempts
	}

	remaining := al.maxAttempts - attempt.Count
	if remaining < 0 {
		remaining = 0
	}

	return false, time.Time{}, remaining
}

func expired(attempt *LoginAttempt, now time.Time) bool {
	return !attempt.LockedUntil.IsZero() && !now.Before(attempt.LockedUntil)
}

// pruneLocked drops entries whose lock expired and whose last attempt is
// older than twice the window. Caller holds mu.
func (al *AccountLockout) pruneLocked(now time.Time) {
	for username, attempt := range al.attempts {
		if (attempt.LockedUntil.IsZero() || now.After(attempt.LockedUntil)) &&
			now.Sub(attempt.LastAttempt) > 2*al.windowDuration {
			delete(al.attempts, username)
		}
	}
}
