package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRepositoryFindByIDs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewWorkerRepository(sqlx.NewDb(db, "sqlmock"))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM workers WHERE id = ANY($1) ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "monthly_capacity_hours", "active", "created_at", "updated_at"}).
			AddRow("w1", "Ana", 160.0, true, now, now).
			AddRow("w2", "Budi", 0.0, true, now, now))

	workers, err := repo.FindByIDs(context.Background(), []string{"w1", "w2"})
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, 160.0, workers[0].MonthlyCapacityHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerRepositoryFindByIDsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWorkerRepository(sqlx.NewDb(db, "sqlmock"))

	workers, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, workers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
