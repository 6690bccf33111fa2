package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/care-roster-api/internal/dto"
)

type batchRecord struct {
	job       dto.BatchRosterJob
	request   dto.BatchRosterRequest
	permanent map[string]bool
	expiresAt time.Time
}

// BatchStatusStore keeps batch job state in memory. Finished jobs are kept
// for ttl.
type BatchStatusStore struct {
	ttl     time.Duration
	mu      sync.RWMutex
	records map[string]*batchRecord
	now     func() time.Time
}

// NewBatchStatusStore constructs a store.
func NewBatchStatusStore(ttl time.Duration) *BatchStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &BatchStatusStore{ttl: ttl, records: make(map[string]*batchRecord), now: time.Now}
}

func (s *BatchStatusStore) create(req dto.BatchRosterRequest, actorID string) dto.BatchRosterJob {
	now := s.now().UTC()
	items := make([]dto.BatchRosterItem, 0, len(req.Patients))
	for _, p := range req.Patients {
		items = append(items, dto.BatchRosterItem{PatientID: p.PatientID, Status: dto.BatchItemPending})
	}
	rec := &batchRecord{
		job: dto.BatchRosterJob{
			ID:        uuid.NewString(),
			Status:    dto.BatchStatusQueued,
			Month:     monthOf(req.Year, req.Month).String(),
			Total:     len(items),
			Items:     items,
			CreatedBy: actorID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		request:   req,
		permanent: make(map[string]bool),
	}
	s.mu.Lock()
	s.records[rec.job.ID] = rec
	s.mu.Unlock()
	return copyBatchJob(rec.job)
}

// Get returns a copy of the job state.
func (s *BatchStatusStore) Get(id string) (dto.BatchRosterJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return dto.BatchRosterJob{}, false
	}
	return copyBatchJob(rec.job), true
}

func (s *BatchStatusStore) request(id string) (dto.BatchRosterRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return dto.BatchRosterRequest{}, false
	}
	return rec.request, true
}

func (s *BatchStatusStore) setStatus(id string, status dto.BatchRosterStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.job.Status = status
		rec.job.UpdatedAt = s.now().UTC()
	}
}

// pending reports whether the patient still needs a run.
func (s *BatchStatusStore) pending(id, patientID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	for _, item := range rec.job.Items {
		if item.PatientID == patientID {
			return item.Status != dto.BatchItemSaved && !rec.permanent[patientID]
		}
	}
	return false
}

func (s *BatchStatusStore) setItem(id string, item dto.BatchRosterItem, permanent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return
	}
	for i := range rec.job.Items {
		if rec.job.Items[i].PatientID == item.PatientID {
			rec.job.Items[i] = item
		}
	}
	if permanent {
		rec.permanent[item.PatientID] = true
	}
	rec.job.Completed, rec.job.Failed = 0, 0
	for _, it := range rec.job.Items {
		switch it.Status {
		case dto.BatchItemSaved:
			rec.job.Completed++
		case dto.BatchItemFailed:
			rec.job.Failed++
		}
	}
	rec.job.UpdatedAt = s.now().UTC()
}

// finish fails every unfinished item with reason (when given) and settles the
// final status. It reports false when the job is unknown or already finished.
func (s *BatchStatusStore) finish(id, reason string) (dto.BatchRosterJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return dto.BatchRosterJob{}, false
	}
	if rec.job.FinishedAt != nil {
		return copyBatchJob(rec.job), false
	}
	now := s.now().UTC()
	rec.job.Completed, rec.job.Failed = 0, 0
	for i := range rec.job.Items {
		item := &rec.job.Items[i]
		if item.Status != dto.BatchItemSaved && reason != "" && !rec.permanent[item.PatientID] {
			item.Status = dto.BatchItemFailed
			item.Error = reason
		}
		switch item.Status {
		case dto.BatchItemSaved:
			rec.job.Completed++
		default:
			rec.job.Failed++
		}
	}
	switch {
	case rec.job.Failed == 0:
		rec.job.Status = dto.BatchStatusCompleted
	case rec.job.Completed == 0:
		rec.job.Status = dto.BatchStatusFailed
	default:
		rec.job.Status = dto.BatchStatusPartial
	}
	rec.job.UpdatedAt = now
	rec.job.FinishedAt = &now
	rec.expiresAt = now.Add(s.ttl)
	return copyBatchJob(rec.job), true
}

// Purge drops finished jobs past their retention and returns how many were
// removed.
func (s *BatchStatusStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if !rec.expiresAt.IsZero() && now.After(rec.expiresAt) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func copyBatchJob(job dto.BatchRosterJob) dto.BatchRosterJob {
	out := job
	out.Items = append([]dto.BatchRosterItem(nil), job.Items...)
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
