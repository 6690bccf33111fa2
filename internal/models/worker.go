package models

import "time"

// Worker is a caregiver who can be assigned to shifts.
type Worker struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	// MonthlyCapacityHours is the worker's capacity across all patients. Zero
	// means unknown.
	MonthlyCapacityHours float64   `db:"monthly_capacity_hours" json:"monthly_capacity_hours"`
	Active               bool      `db:"active" json:"active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
