package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ShiftType values stored in care_plan_assignments.shift_type.
const (
	ShiftTypeDay   = "day"
	ShiftTypeNight = "night"
)

// CarePlan is the stored roster of one patient for one month.
type CarePlan struct {
	ID        string         `db:"id" json:"id"`
	PatientID string         `db:"patient_id" json:"patient_id"`
	Year      int            `db:"year" json:"year"`
	Month     int            `db:"month" json:"month"`
	Meta      types.JSONText `db:"meta" json:"meta"`
	CreatedBy *string        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// CarePlanAssignment is one slot of a care plan. WorkerID is nil when the slot
// is uncovered.
type CarePlanAssignment struct {
	ID         string    `db:"id" json:"id"`
	CarePlanID string    `db:"care_plan_id" json:"care_plan_id"`
	Date       time.Time `db:"date" json:"date"`
	ShiftType  string    `db:"shift_type" json:"shift_type"`
	WorkerID   *string   `db:"worker_id" json:"worker_id,omitempty"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CarePlanAssignmentDetail joins the assignment with the worker name.
type CarePlanAssignmentDetail struct {
	CarePlanAssignment
	WorkerName *string `db:"worker_name" json:"worker_name,omitempty"`
}

// BusyAssignment is a worker's slot on another patient's plan.
type BusyAssignment struct {
	PatientID string    `db:"patient_id"`
	Date      time.Time `db:"date"`
	ShiftType string    `db:"shift_type"`
	WorkerID  string    `db:"worker_id"`
}

// CarePlanFilter narrows plan listings.
type CarePlanFilter struct {
	PatientID string
	Year      int
	Page      int
	PageSize  int
}
