package dto

import "time"

// BatchRosterStatus is the lifecycle of a batch job.
type BatchRosterStatus string

const (
	BatchStatusQueued    BatchRosterStatus = "queued"
	BatchStatusRunning   BatchRosterStatus = "running"
	BatchStatusCompleted BatchRosterStatus = "completed"
	BatchStatusPartial   BatchRosterStatus = "partial"
	BatchStatusFailed    BatchRosterStatus = "failed"
)

// BatchItemStatus is the outcome of one patient in a batch.
type BatchItemStatus string

const (
	BatchItemPending BatchItemStatus = "pending"
	BatchItemSaved   BatchItemStatus = "saved"
	BatchItemFailed  BatchItemStatus = "failed"
)

// BatchPatientRequest is one patient of a batch.
type BatchPatientRequest struct {
	PatientID   string                    `json:"patientId" validate:"required"`
	Preferences []WorkerPreferenceRequest `json:"preferences" validate:"dive"`
}

// BatchRosterRequest generates and saves plans for several patients of one
// month. Patients are processed in order so later plans see earlier ones.
type BatchRosterRequest struct {
	Year     int                   `json:"year" validate:"required,min=2000,max=2100"`
	Month    int                   `json:"month" validate:"required,min=1,max=12"`
	Patients []BatchPatientRequest `json:"patients" validate:"required,min=1,max=50,dive"`
	Export   bool                  `json:"export"`
	// AcceptRelaxed is passed to every save of the batch.
	AcceptRelaxed bool `json:"acceptRelaxed"`
}

// BatchRosterItem reports one patient's outcome.
type BatchRosterItem struct {
	PatientID         string           `json:"patientId"`
	Status            BatchItemStatus  `json:"status"`
	PlanID            string           `json:"planId,omitempty"`
	RelaxedSlots      int              `json:"relaxedSlots"`
	UnfilledSlots     int              `json:"unfilledSlots"`
	Error             string           `json:"error,omitempty"`
	Violation         *RosterViolation `json:"violation,omitempty"`
	DownloadURL       string           `json:"downloadUrl,omitempty"`
	DownloadExpiresAt *time.Time       `json:"downloadExpiresAt,omitempty"`
}

// BatchRosterJob is the status of a batch.
type BatchRosterJob struct {
	ID         string            `json:"id"`
	Status     BatchRosterStatus `json:"status"`
	Month      string            `json:"month"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	Items      []BatchRosterItem `json:"items"`
	CreatedBy  string            `json:"createdBy,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}
