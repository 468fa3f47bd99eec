package service

import (
	"errors"
	"fmt"
)

// Typed failures raised by the auth workflow. Handlers match these
// exhaustively at the HTTP boundary; nothing downstream inspects error
// strings.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrEmailTaken          = errors.New("email already registered")
	ErrUserNotFound        = errors.New("user not found")
	ErrWrongPassword       = errors.New("current password is incorrect")
	ErrInvalidRefreshToken = errors.New("refresh token is invalid or expired")
	ErrInvalidVerifyToken  = errors.New("email verification token is invalid or expired")
	ErrInvalidResetToken   = errors.New("password reset token is invalid or expired")
)

// LockedError carries the remaining lock time so the handler can tell the
// caller when to retry. JustLocked marks the attempt that tripped the lock.
type LockedError struct {
	RetryAfterMinutes int
	JustLocked        bool
}

func (e *LockedError) Error() string {
	if e.JustLocked {
		return "too many failed attempts, account locked"
	}
	return fmt.Sprintf("account locked, retry in %d minutes", e.RetryAfterMinutes)
}
