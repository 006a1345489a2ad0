package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_GetByID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	cols := []string{"id", "user_id", "current_org_id", "expires_at", "revoked_at", "created_at"}
	now := time.Now().UTC()

	mock.ExpectQuery("FROM sessions WHERE id").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "u1", nil, now.Add(time.Hour), nil, now))
	s, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Nil(t, s.CurrentOrgID)
	assert.True(t, s.Active(now))

	mock.ExpectQuery("FROM sessions WHERE id").WithArgs("gone").WillReturnRows(sqlmock.NewRows(cols))
	s, err = repo.GetByID(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteInactive(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	cutoff := time.Now().UTC()
	mock.ExpectExec("DELETE FROM sessions").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgresRepository(conn).DeleteInactive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
