package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/care-roster-api/internal/models"
)

// CarePlanRepository persists monthly care plans and their shift assignments.
type CarePlanRepository struct {
	db *sqlx.DB
}

// NewCarePlanRepository constructs the repository.
func NewCarePlanRepository(db *sqlx.DB) *CarePlanRepository {
	return &CarePlanRepository{db: db}
}

func (r *CarePlanRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const carePlanColumns = `id, patient_id, year, month, meta, created_by, created_at, updated_at`

// FindByPatientMonth loads the plan of a patient for one month. It returns
// sql.ErrNoRows when no plan is stored.
func (r *CarePlanRepository) FindByPatientMonth(ctx context.Context, patientID string, year, month int) (*models.CarePlan, error) {
	const query = `SELECT ` + carePlanColumns + ` FROM care_plans WHERE patient_id = $1 AND year = $2 AND month = $3`
	var plan models.CarePlan
	if err := r.db.GetContext(ctx, &plan, query, patientID, year, month); err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns plans matching the filter, newest month first, with the total
// count.
func (r *CarePlanRepository) List(ctx context.Context, filter models.CarePlanFilter) ([]models.CarePlan, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM care_plans"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count care plans: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM care_plans%s ORDER BY year DESC, month DESC, patient_id ASC LIMIT $%d OFFSET $%d",
		carePlanColumns, where, len(args)-1, len(args))

	var plans []models.CarePlan
	if err := r.db.SelectContext(ctx, &plans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list care plans: %w", err)
	}
	return plans, total, nil
}

// ListAssignments returns the slots of a plan with worker names, ordered by
// date with the day shift first.
func (r *CarePlanRepository) ListAssignments(ctx context.Context, planID string) ([]models.CarePlanAssignmentDetail, error) {
	const query = `SELECT a.id, a.care_plan_id, a.date, a.shift_type, a.worker_id, a.note, a.created_at, w.full_name AS worker_name
FROM care_plan_assignments a
LEFT JOIN workers w ON w.id = a.worker_id
WHERE a.care_plan_id = $1
ORDER BY a.date ASC, CASE a.shift_type WHEN 'day' THEN 0 ELSE 1 END ASC`
	var rows []models.CarePlanAssignmentDetail
	if err := r.db.SelectContext(ctx, &rows, query, planID); err != nil {
		return nil, fmt.Errorf("list care plan assignments: %w", err)
	}
	return rows, nil
}

// ListBusy returns the assigned slots between from and to (inclusive) on plans
// of every patient except excludePatientID.
func (r *CarePlanRepository) ListBusy(ctx context.Context, exec sqlx.ExtContext, excludePatientID string, from, to time.Time) ([]models.BusyAssignment, error) {
	const query = `SELECT p.patient_id, a.date, a.shift_type, a.worker_id
FROM care_plan_assignments a
JOIN care_plans p ON p.id = a.care_plan_id
WHERE p.patient_id <> $1 AND a.worker_id IS NOT NULL AND a.date BETWEEN $2 AND $3
ORDER BY a.date ASC, a.shift_type ASC, a.worker_id ASC`
	var rows []models.BusyAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, excludePatientID, from, to); err != nil {
		return nil, fmt.Errorf("list busy assignments: %w", err)
	}
	return rows, nil
}

// LockMonth takes a transaction-scoped advisory lock serialising plan writes
// for one calendar month across all patients.
func (r *CarePlanRepository) LockMonth(ctx context.Context, exec sqlx.ExtContext, year, month int) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := r.exec(exec).ExecContext(ctx, query, fmt.Sprintf("roster:%04d-%02d", year, month)); err != nil {
		return fmt.Errorf("lock roster month: %w", err)
	}
	return nil
}

// Replace deletes any stored plan for the patient and month, then inserts plan
// and its assignments. Callers run it inside a transaction.
func (r *CarePlanRepository) Replace(ctx context.Context, exec sqlx.ExtContext, plan *models.CarePlan, assignments []models.CarePlanAssignment) error {
	if plan == nil {
		return fmt.Errorf("care plan payload is nil")
	}
	if plan.PatientID == "" || plan.Year == 0 || plan.Month == 0 {
		return fmt.Errorf("patient_id, year and month are required")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if len(plan.Meta) == 0 {
		plan.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	target := r.exec(exec)

	const deleteQuery = `DELETE FROM care_plans WHERE patient_id = $1 AND year = $2 AND month = $3`
	if _, err := target.ExecContext(ctx, deleteQuery, plan.PatientID, plan.Year, plan.Month); err != nil {
		return fmt.Errorf("delete previous care plan: %w", err)
	}

	const insertPlan = `
INSERT INTO care_plans (id, patient_id, year, month, meta, created_by, created_at, updated_at)
VALUES (:id, :patient_id, :year, :month, :meta, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertPlan, plan); err != nil {
		return fmt.Errorf("insert care plan: %w", err)
	}

	const insertAssignment = `
INSERT INTO care_plan_assignments (id, care_plan_id, date, shift_type, worker_id, note, created_at)
VALUES (:id, :care_plan_id, :date, :shift_type, :worker_id, :note, :created_at)`
	for i := range assignments {
		a := &assignments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CarePlanID = plan.ID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, insertAssignment, a); err != nil {
			return fmt.Errorf("insert care plan assignment: %w", err)
		}
	}
	return nil
}

// DeleteByPatientMonth removes a stored plan. It returns sql.ErrNoRows when
// nothing was deleted.
func (r *CarePlanRepository) DeleteByPatientMonth(ctx context.Context, exec sqlx.ExtContext, patientID string, year, month int) error {
	const query = `DELETE FROM care_plans WHERE patient_id = $1 AND year = $2 AND month = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, patientID, year, month)
	if err != nil {
		return fmt.Errorf("delete care plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("care plan rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
