package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/session/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s         domain.Session
		orgID     sql.NullString
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, current_org_id, expires_at, revoked_at, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &orgID, &s.ExpiresAt, &revokedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.CurrentOrgID = db.StringPtr(orgID)
	s.RevokedAt = db.TimePtr(revokedAt)
	return &s, nil
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, current_org_id, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, db.NullString(s.CurrentOrgID), s.ExpiresAt, s.CreatedAt)
	return err
}

// Revoke marks the session revoked. Revoking twice keeps the first timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// SetCurrentOrg writes the selected organization for the session.
func (r *PostgresRepository) SetCurrentOrg(ctx context.Context, id, orgID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET current_org_id = $1 WHERE id = $2`, orgID, id)
	return err
}

// DeleteInactive removes sessions that expired or were revoked before cutoff.
func (r *PostgresRepository) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
