package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cosmicplatform/api/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

const userColumns = `
	id, username, email, password_hash, display_name, bio, avatar_url,
	email_verified, email_verify_token, password_reset_token, password_reset_expires,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at
`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Bio,
		&user.AvatarURL,
		&user.EmailVerified,
		&user.EmailVerifyToken,
		&user.PasswordResetToken,
		&user.PasswordResetExpires,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, username, email, password_hash, display_name, bio,
			email_verified, email_verify_token, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Bio,
		user.EmailVerified,
		user.EmailVerifyToken,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "users_username_key":
				return ErrUsernameTaken
			case "users_email_key":
				return ErrEmailTaken
			}
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// FindByIdentifier looks an account up by username or email. The identifier
// is expected to be normalized already.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, identifier))
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// RecordLoginFailure bumps the failure counter in a single statement so
// concurrent bad attempts cannot undercount, and sets locked_until when the
// new count reaches the threshold. Returns the post-increment count and the
// lock timestamp, if any.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	const query = `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	if err := r.pool.QueryRow(ctx, query, id, threshold, lockUntil).Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByEmailAndVerifyToken(ctx context.Context, email string, token string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND email_verify_token = $2`
	return scanUser(r.pool.QueryRow(ctx, query, email, token))
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET email_verified = TRUE,
		    email_verify_token = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetPasswordResetToken(ctx context.Context, id string, token string, expires time.Time) error {
	const query = `
		UPDATE users
		SET password_reset_token = $2,
		    password_reset_expires = $3,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, token, expires)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindByResetToken matches a pending, unexpired reset token.
func (r *UserRepository) FindByResetToken(ctx context.Context, email string, token string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND password_reset_token = $2 AND password_reset_expires > NOW()
	`
	return scanUser(r.pool.QueryRow(ctx, query, email, token))
}

// ResetPassword installs the new digest, clears the reset token and lockout
// state, and deletes every session for the account in one transaction.
func (r *UserRepository) ResetPassword(ctx context.Context, id string, passwordHash string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const update = `
		UPDATE users
		SET password_hash = $2,
		    password_reset_token = NULL,
		    password_reset_expires = NULL,
		    failed_login_attempts = 0,
		    locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := tx.Exec(ctx, update, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ChangePassword installs the new digest and deletes all sessions except the
// one holding keepTokenHash, in one transaction. A nil keepTokenHash drops
// every session.
func (r *UserRepository) ChangePassword(ctx context.Context, id string, passwordHash string, keepTokenHash []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := tx.Exec(ctx, update, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if keepTokenHash == nil {
		_, err = tx.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, id)
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1 AND refresh_token_hash <> $2`, id, keepTokenHash)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateProfile applies a partial update; nil fields keep their value.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, displayName *string, bio *string, avatarURL *string) (models.User, error) {
	const query = `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    bio = COALESCE($3, bio),
		    avatar_url = COALESCE($4, avatar_url),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns + `
	`
	return scanUser(r.pool.QueryRow(ctx, query, id, displayName, bio, avatarURL))
}
