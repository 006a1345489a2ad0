package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/invitation/domain"
	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
)

const invitationColumns = `id, org_id, email, role, token, invited_by, expires_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an invitation repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the invitation. A second pending invitation for the same org and email is reported as apperr.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	invitedBy := sql.NullString{String: inv.InvitedBy, Valid: inv.InvitedBy != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (`+invitationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.OrgID, inv.Email, string(inv.Role), inv.Token, invitedBy, inv.ExpiresAt, inv.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("invitation already pending: %w", apperr.ErrConflict)
	}
	return err
}

// GetByID returns the invitation for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.get(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// GetByToken returns the invitation for token, or nil if not found.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	return r.get(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
}

// ListByOrg returns the org's pending invitations, oldest first.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE org_id = $1 ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Delete removes the invitation. Deleting a missing invitation is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	return err
}

// DeleteExpired removes invitations that expired at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) get(ctx context.Context, query, arg string) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(s scanner) (*domain.Invitation, error) {
	var (
		inv       domain.Invitation
		role      string
		invitedBy sql.NullString
	)
	if err := s.Scan(&inv.ID, &inv.OrgID, &inv.Email, &role, &inv.Token, &invitedBy, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Role = membershipdomain.Role(role)
	inv.InvitedBy = invitedBy.String
	return &inv, nil
}
