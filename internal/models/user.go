package models

import "time"

// User is an account record. Username and email are stored trimmed and
// lower-cased; uniqueness is enforced on the normalized values.
type User struct {
	ID                   string
	Username             string
	Email                string
	PasswordHash         string
	DisplayName          string
	Bio                  string
	AvatarURL            *string
	EmailVerified        bool
	EmailVerifyToken     *string
	PasswordResetToken   *string
	PasswordResetExpires *time.Time
	FailedLoginAttempts  int
	LockedUntil          *time.Time
	LastLoginAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Session proves a refresh token is still valid. The token itself is never
// stored, only its sha256 hash. A refresh token with a valid signature but no
// matching unexpired row is dead.
type Session struct {
	ID               string
	UserID           string
	TokenID          string
	RefreshTokenHash []byte
	ExpiresAt        time.Time
	CreatedAt        time.Time
}
