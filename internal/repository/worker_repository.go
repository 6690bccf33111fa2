package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/care-roster-api/internal/models"
)

// WorkerRepository reads caregivers.
type WorkerRepository struct {
	db *sqlx.DB
}

// NewWorkerRepository constructs the repository.
func NewWorkerRepository(db *sqlx.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// FindByIDs loads the workers with the given ids, ordered by id. Unknown ids
// are silently skipped.
func (r *WorkerRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Worker, error) {
	if len(ids) == 0 {
		return []models.Worker{}, nil
	}
	const query = `SELECT id, full_name, monthly_capacity_hours, active, created_at, updated_at
FROM workers WHERE id = ANY($1) ORDER BY id ASC`
	var workers []models.Worker
	if err := r.db.SelectContext(ctx, &workers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list workers by ids: %w", err)
	}
	return workers, nil
}
