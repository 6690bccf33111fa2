package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/care-roster-api/internal/dto"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
	"github.com/noah-isme/care-roster-api/pkg/jobs"
	"github.com/noah-isme/care-roster-api/pkg/middleware/requestid"
)

const batchJobType = "roster_batch"

// batchPayload carries submit-time context into the worker so the generate
// and save logs of a batch share the submitting request's ID.
type batchPayload struct {
	RequestID string
}

type rosterRunner interface {
	Generate(ctx context.Context, req dto.GenerateRosterRequest, actorID string) (*dto.GenerateRosterResponse, error)
	Save(ctx context.Context, req dto.SaveRosterRequest, actorID string) (*dto.RosterPlanResponse, error)
	Export(ctx context.Context, patientID string, year, month int) (*RosterExport, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// BatchServiceConfig governs export retention and cleanup.
type BatchServiceConfig struct {
	ExportTTL       time.Duration
	CleanupInterval time.Duration
}

// BatchDownload aggregates resolved download data.
type BatchDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// BatchService accepts batch roster requests and exposes their progress.
type BatchService struct {
	store     *BatchStatusStore
	queue     jobDispatcher
	storage   exportStorage
	signer    downloadSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BatchServiceConfig
}

// NewBatchService constructs the batch service. storage and signer may be nil
// when exports are disabled.
func NewBatchService(store *BatchStatusStore, queue jobDispatcher, storage exportStorage, signer downloadSigner, validate *validator.Validate, logger *zap.Logger, cfg BatchServiceConfig) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = 24 * time.Hour
	}
	return &BatchService{
		store:     store,
		queue:     queue,
		storage:   storage,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Submit validates and enqueues a batch.
func (s *BatchService) Submit(ctx context.Context, req dto.BatchRosterRequest, actorID string) (*dto.BatchRosterJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	seen := make(map[string]struct{}, len(req.Patients))
	for _, p := range req.Patients {
		if _, ok := seen[p.PatientID]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("patient %s listed more than once", p.PatientID))
		}
		seen[p.PatientID] = struct{}{}
		if len(p.Preferences) == 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("patient %s has no worker preferences", p.PatientID))
		}
	}
	if req.Export && (s.storage == nil || s.signer == nil) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "roster exports are not configured")
	}

	job := s.store.create(req, actorID)
	reqID := requestid.FromContext(ctx)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: batchJobType, Payload: batchPayload{RequestID: reqID}}); err != nil {
		s.store.finish(job.ID, "failed to enqueue batch")
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "batch queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue batch")
	}
	s.logger.Sugar().Infow("roster batch queued", "job_id", job.ID, "month", job.Month, "patients", job.Total, "actor", actorID, "request_id", reqID)
	return &job, nil
}

// Status returns the progress of a batch.
func (s *BatchService) Status(ctx context.Context, id string) (*dto.BatchRosterJob, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return &job, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *BatchService) ResolveDownload(ctx context.Context, token string) (*BatchDownload, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "roster exports are not configured")
	}
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if !strings.HasPrefix(relPath, batchExportDir(jobID)+"/") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &BatchDownload{File: file, Filename: path.Base(relPath), ExpiresAt: expiresAt}, nil
}

// StartCleanup boots a goroutine that purges expired exports and finished
// batches periodically.
func (s *BatchService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

func (s *BatchService) cleanupExpired() {
	if s.storage != nil {
		removed, err := s.storage.CleanupOlderThan(s.cfg.ExportTTL)
		if err != nil {
			s.logger.Sugar().Warnw("export cleanup failed", "error", err)
		} else if len(removed) > 0 {
			s.logger.Sugar().Infow("expired exports removed", "count", len(removed))
		}
	}
	if purged := s.store.Purge(); purged > 0 {
		s.logger.Sugar().Debugw("finished batches purged", "count", purged)
	}
}

// BatchWorkerConfig controls retries and download links.
type BatchWorkerConfig struct {
	MaxRetries   int
	DownloadPath string
}

// BatchWorker bridges queue jobs to RosterService.
type BatchWorker struct {
	store   *BatchStatusStore
	rosters rosterRunner
	storage exportStorage
	signer  downloadSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     BatchWorkerConfig
}

// NewBatchWorker constructs a worker.
func NewBatchWorker(store *BatchStatusStore, rosters rosterRunner, storage exportStorage, signer downloadSigner, metrics *MetricsService, logger *zap.Logger, cfg BatchWorkerConfig) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &BatchWorker{
		store:   store,
		rosters: rosters,
		storage: storage,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Handle processes a queue job. Saved patients are skipped on retry.
func (w *BatchWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := w.store.request(job.ID)
	if !ok {
		return fmt.Errorf("batch %s not found", job.ID)
	}
	w.store.setStatus(job.ID, dto.BatchStatusRunning)
	if payload, ok := job.Payload.(batchPayload); ok && payload.RequestID != "" {
		ctx = requestid.WithValue(ctx, payload.RequestID)
	}

	var retryErr error
	for _, patient := range req.Patients {
		if !w.store.pending(job.ID, patient.PatientID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := w.runPatient(ctx, job.ID, req, patient)
		retryable := appErrors.Retryable(err)
		w.store.setItem(job.ID, item, err != nil && !retryable)
		if retryable {
			retryErr = err
			w.logger.Sugar().Warnw("batch patient failed", "job_id", job.ID, "patient_id", patient.PatientID, "attempt", job.Attempt, "error", err)
		}
	}

	if retryErr != nil && job.Attempt < w.cfg.MaxRetries {
		return retryErr
	}
	reason := ""
	if retryErr != nil {
		reason = appErrors.FromError(retryErr).Message
	}
	w.complete(job.ID, reason)
	return nil
}

// OnFailure settles a batch whose job could not be processed.
func (w *BatchWorker) OnFailure(job jobs.Job, err error) {
	reason := "batch processing failed"
	if err != nil {
		reason = err.Error()
	}
	w.complete(job.ID, reason)
}

func (w *BatchWorker) complete(id, reason string) {
	job, ok := w.store.finish(id, reason)
	if !ok {
		return
	}
	if w.metrics != nil {
		w.metrics.RecordBatchJob(string(job.Status))
	}
	w.logger.Sugar().Infow("roster batch finished",
		"job_id", job.ID,
		"status", job.Status,
		"completed", job.Completed,
		"failed", job.Failed,
	)
}

func (w *BatchWorker) runPatient(ctx context.Context, jobID string, req dto.BatchRosterRequest, patient dto.BatchPatientRequest) (dto.BatchRosterItem, error) {
	item := dto.BatchRosterItem{PatientID: patient.PatientID, Status: dto.BatchItemFailed}
	actor := "batch:" + jobID

	generated, err := w.rosters.Generate(ctx, dto.GenerateRosterRequest{
		PatientID:   patient.PatientID,
		Year:        req.Year,
		Month:       req.Month,
		Preferences: patient.Preferences,
	}, actor)
	if err != nil {
		item.Error = appErrors.FromError(err).Message
		return item, err
	}
	item.RelaxedSlots = len(generated.Relaxations)
	item.UnfilledSlots = len(generated.Unfilled)

	saved, err := w.rosters.Save(ctx, dto.SaveRosterRequest{ProposalID: generated.ProposalID, AcceptRelaxed: req.AcceptRelaxed}, actor)
	if err != nil {
		item.Error = appErrors.FromError(err).Message
		if v, ok := ViolationFromError(err); ok {
			item.Violation = v
		}
		return item, err
	}
	item.Status = dto.BatchItemSaved
	item.PlanID = saved.ID
	item.UnfilledSlots = saved.Unfilled

	if req.Export {
		if err := w.exportPatient(ctx, jobID, req, &item); err != nil {
			item.Error = "export failed"
			w.logger.Sugar().Warnw("batch export failed", "job_id", jobID, "patient_id", patient.PatientID, "error", err)
		}
	}
	return item, nil
}

func (w *BatchWorker) exportPatient(ctx context.Context, jobID string, req dto.BatchRosterRequest, item *dto.BatchRosterItem) error {
	if w.storage == nil || w.signer == nil {
		return errors.New("export storage not configured")
	}
	exported, err := w.rosters.Export(ctx, item.PatientID, req.Year, req.Month)
	if err != nil {
		return err
	}
	relPath, err := w.storage.Save(path.Join(batchExportDir(jobID), exported.Filename), exported.Data)
	if err != nil {
		return err
	}
	token, expiresAt, err := w.signer.Generate(jobID, relPath)
	if err != nil {
		return err
	}
	item.DownloadURL = w.cfg.DownloadPath + "?token=" + url.QueryEscape(token)
	item.DownloadExpiresAt = &expiresAt
	return nil
}

func batchExportDir(jobID string) string {
	return path.Join("batches", jobID)
}
