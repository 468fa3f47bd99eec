package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cosmicplatform/api/internal/ids"
	"cosmicplatform/api/internal/mail"
	"cosmicplatform/api/internal/models"
	"cosmicplatform/api/internal/repository"
	"cosmicplatform/api/internal/security"
)

// UserStore is the persistence surface the auth workflow needs from the user
// repository.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id string) error
	FindByEmailAndVerifyToken(ctx context.Context, email string, token string) (models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
	SetPasswordResetToken(ctx context.Context, id string, token string, expires time.Time) error
	FindByResetToken(ctx context.Context, email string, token string) (models.User, error)
	ResetPassword(ctx context.Context, id string, passwordHash string) error
	ChangePassword(ctx context.Context, id string, passwordHash string, keepTokenHash []byte) error
	UpdateProfile(ctx context.Context, id string, displayName *string, bio *string, avatarURL *string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByTokenHash(ctx context.Context, userID string, tokenHash []byte) (models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash []byte) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// AuthService orchestrates registration, login, token refresh and the
// password lifecycle over the stores, token manager, hasher and lockout
// policy.
type AuthService struct {
	users      UserStore
	sessions   SessionStore
	tokens     *security.TokenManager
	hasher     *security.PasswordHasher
	lockout    security.LockoutPolicy
	mailer     mail.Mailer
	refreshTTL time.Duration
	resetTTL   time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	tokens *security.TokenManager,
	hasher *security.PasswordHasher,
	lockout security.LockoutPolicy,
	mailer mail.Mailer,
	refreshTTL time.Duration,
	resetTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		hasher:     hasher,
		lockout:    lockout,
		mailer:     mailer,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		log:        log,
		now:        time.Now,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	Bio         string
}

// Register creates an unverified account and queues the verification mail.
// Delivery failure is logged, never surfaced; the account exists either way.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	username := normalize(input.Username)
	email := normalize(input.Email)

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return models.User{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, err
	}

	verifyToken, err := s.tokens.IssueEmailVerify(email)
	if err != nil {
		return models.User{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	user := models.User{
		ID:               ids.New(),
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		DisplayName:      displayName,
		Bio:              strings.TrimSpace(input.Bio),
		EmailVerified:    false,
		EmailVerifyToken: &verifyToken,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return models.User{}, ErrUsernameTaken
		case errors.Is(err, repository.ErrEmailTaken):
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	if err := s.mailer.SendVerification(ctx, email, displayName, verifyToken); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("verification mail delivery failed")
	}

	return user, nil
}

type LoginInput struct {
	Identifier string
	Password   string
}

type LoginResult struct {
	User         models.User
	AccessToken  string
	RefreshToken string
}

// Login authenticates by username or email. The lock check runs before the
// password check so a locked account answers cheaply, and a correct password
// during a lock still answers locked.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	identifier := normalize(input.Identifier)

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	now := s.now()
	if locked, remaining := s.lockout.Locked(user.LockedUntil, now); locked {
		return LoginResult{}, &LockedError{RetryAfterMinutes: remaining}
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		attempts, _, err := s.users.RecordLoginFailure(ctx, user.ID, s.lockout.Threshold, s.lockout.LockUntil(now))
		if err != nil {
			return LoginResult{}, err
		}
		if s.lockout.ShouldLock(attempts) {
			return LoginResult{}, &LockedError{
				RetryAfterMinutes: int(s.lockout.LockDuration.Minutes()),
				JustLocked:        true,
			}
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	accessToken, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	refreshToken, tokenID, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		TokenID:          tokenID,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		ExpiresAt:        now.Add(s.refreshTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return LoginResult{}, err
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID); err != nil {
		return LoginResult{}, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	return LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh mints a new access token for a live session. The refresh token must
// verify cryptographically and its session row must still exist unexpired;
// either failing is the same 401 to the caller.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	tokenHash := security.HashRefreshToken(refreshToken)
	if _, err := s.sessions.FindByTokenHash(ctx, claims.UserID, tokenHash); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}

	return s.tokens.IssueAccess(claims.UserID)
}

// Logout drops the session for the presented refresh token. Idempotent; a
// missing or unknown token is still a successful logout.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.DeleteByTokenHash(ctx, security.HashRefreshToken(refreshToken))
}

// VerifyEmail flips the verified flag for the account holding the pending
// token. Verifying an already-verified account succeeds without touching
// state.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (models.User, error) {
	claims, err := s.tokens.Verify(token, security.TokenTypeEmailVerify)
	if err != nil {
		return models.User{}, ErrInvalidVerifyToken
	}

	user, err := s.users.FindByEmailAndVerifyToken(ctx, claims.Email, token)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, err
		}
		// The pending token is cleared on first use; a replay against an
		// already-verified account is a success, not an error.
		existing, lookupErr := s.users.FindByEmail(ctx, claims.Email)
		if lookupErr == nil && existing.EmailVerified {
			return existing, nil
		}
		return models.User{}, ErrInvalidVerifyToken
	}

	if user.EmailVerified {
		return user, nil
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return models.User{}, err
	}
	user.EmailVerified = true
	user.EmailVerifyToken = nil
	return user, nil
}

// ForgotPassword issues a reset token when the account exists and reports
// nothing either way; the caller always sees the same generic success.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalize(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := s.tokens.IssuePasswordReset(email)
	if err != nil {
		return err
	}

	if err := s.users.SetPasswordResetToken(ctx, user.ID, resetToken, s.now().Add(s.resetTTL)); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, email, user.DisplayName, resetToken); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("reset mail delivery failed")
	}

	return nil
}

// ResetPassword consumes a pending reset token: new digest, cleared reset and
// lockout state, every session for the account dropped, atomically.
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	claims, err := s.tokens.Verify(token, security.TokenTypePasswordReset)
	if err != nil {
		return ErrInvalidResetToken
	}

	user, err := s.users.FindByResetToken(ctx, claims.Email, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return s.users.ResetPassword(ctx, user.ID, passwordHash)
}

// ChangePassword rotates the digest for an authenticated caller and drops
// every other session; the session behind currentRefreshToken survives so the
// caller stays signed in on this device.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentPassword string, newPassword string, currentRefreshToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPassword
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var keepHash []byte
	if currentRefreshToken != "" {
		keepHash = security.HashRefreshToken(currentRefreshToken)
	}

	return s.users.ChangePassword(ctx, userID, passwordHash, keepHash)
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (models.User, error) {
	user, err := s.users.UpdateProfile(ctx, userID, input.DisplayName, input.Bio, input.AvatarURL)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
