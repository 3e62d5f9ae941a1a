package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/store-ratings/internal/domain"
)

// SessionsRepository stores login sessions.
type SessionsRepository struct {
	pool *pgxpool.Pool
}

// Create opens a session for userID that expires at expiresAt.
func (r *SessionsRepository) Create(ctx context.Context, userID string, expiresAt time.Time) (domain.Session, error) {
	const query = `
        INSERT INTO sessions (id, user_id, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, user_id, created_at, expires_at, revoked_at
    `
	var s domain.Session
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), userID, expiresAt).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if isConstraintViolation(err, pgForeignKeyViolation, "") {
			return domain.Session{}, ErrUserNotFound
		}
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// GetActive loads an unrevoked, unexpired session together with its user.
func (r *SessionsRepository) GetActive(ctx context.Context, sessionID string, now time.Time) (domain.Session, domain.User, error) {
	query := fmt.Sprintf(`
        SELECT s.id, s.user_id, s.created_at, s.expires_at, s.revoked_at, %s
        FROM sessions s
        JOIN users u ON u.id = s.user_id
        WHERE s.id = $1 AND s.revoked_at IS NULL AND s.expires_at > $2
    `, prefixedUserColumns)

	var (
		s    domain.Session
		u    domain.User
		role string
	)
	err := r.pool.QueryRow(ctx, query, sessionID, now).Scan(
		&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt,
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Address, &role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, domain.User{}, notFound(err, ErrNotFound)
	}
	u.Role = domain.Role(role)
	return s, u, nil
}

// Revoke ends a session. Revoking an already revoked session is a no-op.
func (r *SessionsRepository) Revoke(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked_at = COALESCE(revoked_at, now()) WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeOthers ends every active session of userID except keepID.
func (r *SessionsRepository) RevokeOthers(ctx context.Context, userID, keepID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
        UPDATE sessions SET revoked_at = now()
        WHERE user_id = $1 AND id <> $2 AND revoked_at IS NULL
    `, userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

const prefixedUserColumns = `u.id, u.name, u.email, u.password_hash, u.address, u.role, u.created_at, u.updated_at`
