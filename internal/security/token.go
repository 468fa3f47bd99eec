package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypeEmailVerify   TokenType = "email_verify"
	TokenTypePasswordReset TokenType = "password_reset"
)

const (
	tokenIssuer   = "cosmic-platform"
	tokenAudience = "cosmic-users"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	ErrTokenInvalid      = errors.New("token invalid")
)

type TokenClaims struct {
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	TokenID   string    `json:"tokenId"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the four token kinds. Access, email_verify
// and password_reset share one secret; refresh tokens use their own so the
// refresh trust chain can be rotated independently.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte

	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
	resetTTL   time.Duration

	now func() time.Time
}

type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Email   time.Duration
	Reset   time.Duration
}

func NewTokenManager(accessSecret string, refreshSecret string, ttls TokenTTLs) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     ttls.Access,
		refreshTTL:    ttls.Refresh,
		emailTTL:      ttls.Email,
		resetTTL:      ttls.Reset,
		now:           time.Now,
	}
}

func (m *TokenManager) IssueAccess(userID string) (string, error) {
	token, _, err := m.sign(TokenTypeAccess, userID, "", m.accessTTL, m.accessSecret)
	return token, err
}

// IssueRefresh also returns the token's unique id, recorded on the session
// row for traceability.
func (m *TokenManager) IssueRefresh(userID string) (string, string, error) {
	return m.sign(TokenTypeRefresh, userID, "", m.refreshTTL, m.refreshSecret)
}

func (m *TokenManager) IssueEmailVerify(email string) (string, error) {
	token, _, err := m.sign(TokenTypeEmailVerify, "", email, m.emailTTL, m.accessSecret)
	return token, err
}

func (m *TokenManager) IssuePasswordReset(email string) (string, error) {
	token, _, err := m.sign(TokenTypePasswordReset, "", email, m.resetTTL, m.accessSecret)
	return token, err
}

func (m *TokenManager) sign(kind TokenType, userID string, email string, ttl time.Duration, secret []byte) (string, string, error) {
	now := m.now()
	tokenID := uuid.NewString()
	claims := TokenClaims{
		UserID:    userID,
		Email:     email,
		TokenID:   tokenID,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, tokenID, nil
}

// Verify validates signature, issuer, audience and expiry against the secret
// for expected, then checks the embedded type tag. Failure kinds are distinct
// so callers can branch: expired means "refresh me", invalid means
// "re-authenticate", mismatch means a token is being replayed against the
// wrong endpoint.
func (m *TokenManager) Verify(tokenStr string, expected TokenType) (*TokenClaims, error) {
	secret := m.accessSecret
	if expected == TokenTypeRefresh {
		secret = m.refreshSecret
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expected {
		return nil, ErrTokenTypeMismatch
	}
	return claims, nil
}

// Decode inspects a token without checking its signature. Diagnostics only,
// never an authorization decision.
func (m *TokenManager) Decode(tokenStr string) *TokenClaims {
	claims := &TokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	return claims
}

// ExtractBearer parses an Authorization header strictly: exactly two
// space-separated parts with a case-sensitive "Bearer" scheme. Anything else
// yields the empty string.
func ExtractBearer(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// HashRefreshToken derives the storage key for a refresh token. Sessions keep
// only this hash so a database leak does not leak usable tokens.
func HashRefreshToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
