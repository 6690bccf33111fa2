package dto

import "time"

// WorkerPreferenceRequest is one worker's scheduling request. Out of range
// numbers are coerced by the engine, never rejected.
type WorkerPreferenceRequest struct {
	WorkerID             string   `json:"workerId" validate:"required"`
	AllowDay             *bool    `json:"allowDay"`
	AllowNight           *bool    `json:"allowNight"`
	Ratio                *float64 `json:"ratio"`
	Days                 *float64 `json:"days"`
	Priority             bool     `json:"priority"`
	SpreadAcrossPatients bool     `json:"spreadAcrossPatients"`
	// CommittedHours are hours this worker already owes the patient outside
	// the generated grid.
	CommittedHours float64 `json:"committedHours" validate:"min=0"`
}

// RosterAssignment is one (date, shift) slot. An empty WorkerID marks an
// uncovered slot.
type RosterAssignment struct {
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Shift      string `json:"shift" validate:"required,oneof=day night"`
	WorkerID   string `json:"workerId,omitempty"`
	WorkerName string `json:"workerName,omitempty"`
	Note       string `json:"note,omitempty"`
}

// GenerateRosterRequest asks the engine for a month proposal.
type GenerateRosterRequest struct {
	PatientID   string                    `json:"patientId" validate:"required"`
	Year        int                       `json:"year" validate:"required,min=2000,max=2100"`
	Month       int                       `json:"month" validate:"required,min=1,max=12"`
	Preferences []WorkerPreferenceRequest `json:"preferences" validate:"dive"`
	Seed        []RosterAssignment        `json:"seed" validate:"omitempty,dive"`
}

// ShiftRef identifies a slot.
type ShiftRef struct {
	Date  string `json:"date"`
	Shift string `json:"shift"`
}

// WorkerRosterState reports targets against usage for one worker.
type WorkerRosterState struct {
	WorkerID            string    `json:"workerId"`
	TargetDayShifts     int       `json:"targetDayShifts"`
	TargetNightShifts   int       `json:"targetNightShifts"`
	AssignedDayShifts   int       `json:"assignedDayShifts"`
	AssignedNightShifts int       `json:"assignedNightShifts"`
	AssignedHours       float64   `json:"assignedHours"`
	BaseHours           float64   `json:"baseHours"`
	MaxPatientHours     float64   `json:"maxPatientHours,omitempty"`
	LastShift           *ShiftRef `json:"lastShift,omitempty"`
}

// RosterRelaxation reports a backfill placement that broke a rest rule.
type RosterRelaxation struct {
	Date      string `json:"date"`
	Shift     string `json:"shift"`
	WorkerID  string `json:"workerId"`
	Rule      string `json:"rule"`
	Displaced string `json:"displaced,omitempty"`
}

// RosterViolation is a rule breach found by the validator.
type RosterViolation struct {
	WorkerID  string `json:"workerId"`
	Date      string `json:"date"`
	NextDate  string `json:"nextDate,omitempty"`
	Shift     string `json:"shift"`
	Reason    string `json:"reason"`
	PatientID string `json:"patientId,omitempty"`
	Message   string `json:"message"`
}

// GenerateRosterResponse returns the proposal and its diagnostics.
type GenerateRosterResponse struct {
	ProposalID   string              `json:"proposalId"`
	PatientID    string              `json:"patientId"`
	Month        string              `json:"month"`
	Assignments  []RosterAssignment  `json:"assignments"`
	Workers      []WorkerRosterState `json:"workers"`
	Relaxations  []RosterRelaxation  `json:"relaxations"`
	Unfilled     []ShiftRef          `json:"unfilled"`
	Idle         []string            `json:"idle"`
	Violations   []RosterViolation   `json:"violations"`
	SeedAccepted int                 `json:"seedAccepted"`
	RepairPasses int                 `json:"repairPasses"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// ValidateRosterRequest checks a candidate plan against other patients' plans.
type ValidateRosterRequest struct {
	PatientID   string             `json:"patientId" validate:"required"`
	Year        int                `json:"year" validate:"required,min=2000,max=2100"`
	Month       int                `json:"month" validate:"required,min=1,max=12"`
	Assignments []RosterAssignment `json:"assignments" validate:"required,min=1,dive"`
}

// ValidateRosterResponse carries the first violation and the full list.
type ValidateRosterResponse struct {
	Valid      bool              `json:"valid"`
	Violation  *RosterViolation  `json:"violation,omitempty"`
	Violations []RosterViolation `json:"violations"`
}

// SaveRosterRequest persists either a stored proposal or an explicit plan.
// When ProposalID is set, Assignments (if any) replace the proposal's slots.
type SaveRosterRequest struct {
	ProposalID  string             `json:"proposalId"`
	PatientID   string             `json:"patientId"`
	Year        int                `json:"year" validate:"omitempty,min=2000,max=2100"`
	Month       int                `json:"month" validate:"omitempty,min=1,max=12"`
	Assignments []RosterAssignment `json:"assignments" validate:"omitempty,dive"`
	// AcceptRelaxed stores plans that break only own-plan rest rules, such as
	// relaxed-mode proposals. Cross-patient conflicts are still rejected.
	AcceptRelaxed bool `json:"acceptRelaxed"`
}

// RosterPlanResponse is a stored plan.
type RosterPlanResponse struct {
	ID          string             `json:"id"`
	PatientID   string             `json:"patientId"`
	Year        int                `json:"year"`
	Month       int                `json:"month"`
	Assignments []RosterAssignment `json:"assignments"`
	Unfilled    int                `json:"unfilled"`
	Meta        map[string]any     `json:"meta,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// RosterPlanSummary is a listing row.
type RosterPlanSummary struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RosterListQuery filters stored plans.
type RosterListQuery struct {
	PatientID string `form:"patientId"`
	Year      int    `form:"year" validate:"omitempty,min=2000,max=2100"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}
