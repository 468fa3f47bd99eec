package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cosmicplatform/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO user_sessions (
			id, user_id, token_id, refresh_token_hash, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TokenID,
		session.RefreshTokenHash,
		session.ExpiresAt,
	)
	return err
}

// FindByTokenHash returns the live session for a refresh token hash. Expiry
// is enforced here so a row past its expires_at is as good as absent.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, userID string, tokenHash []byte) (models.Session, error) {
	const query = `
		SELECT id, user_id, token_id, refresh_token_hash, expires_at, created_at
		FROM user_sessions
		WHERE user_id = $1 AND refresh_token_hash = $2 AND expires_at > NOW()
	`

	row := r.pool.QueryRow(ctx, query, userID, tokenHash)
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenID,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

// DeleteByTokenHash removes the session for a presented refresh token.
// Deleting an absent session is not an error; logout is idempotent.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash []byte) error {
	const query = `DELETE FROM user_sessions WHERE refresh_token_hash = $1`
	_, err := r.pool.Exec(ctx, query, tokenHash)
	return err
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM user_sessions WHERE user_id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// DeleteExpired sweeps sessions past their expiry. Run periodically by the
// scheduler.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at <= NOW()`
	cmd, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
