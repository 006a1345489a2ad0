package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_GetOrganizationByID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	cols := []string{"id", "name", "plan_id", "stripe_customer_id", "stripe_subscription_id",
		"dodo_customer_id", "dodo_subscription_id", "lemonsqueezy_customer_id", "lemonsqueezy_subscription_id",
		"created_at", "updated_at"}
	now := time.Now()

	mock.ExpectQuery("FROM organizations WHERE id").WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("o1", "Acme", "p1", "cus_1", "sub_1", nil, nil, nil, nil, now, now))
	o, err := repo.GetOrganizationByID(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "p1", *o.PlanID)
	assert.True(t, o.Billing.HasSubscription())
	assert.Nil(t, o.Billing.DodoCustomerID)

	mock.ExpectQuery("FROM organizations WHERE id").WithArgs("missing").WillReturnRows(sqlmock.NewRows(cols))
	o, err = repo.GetOrganizationByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, o)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_PersistPlan(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	plan := "p3"

	mock.ExpectExec("stripe_subscription_id = NULL").WithArgs("p3", "o1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.PersistPlan(context.Background(), "o1", &plan, true))

	mock.ExpectExec("UPDATE organizations SET plan_id = \\$1, updated_at").WithArgs(nil, "o1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.PersistPlan(context.Background(), "o1", nil, false))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_LockOrganization(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)

	mock.ExpectQuery("FOR UPDATE").WithArgs("o1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o1"))
	ok, err := repo.LockOrganization(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("FOR UPDATE").WithArgs("gone").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	ok, err = repo.LockOrganization(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
