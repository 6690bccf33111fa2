package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/roster"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
	"github.com/noah-isme/care-roster-api/pkg/export"
	"github.com/noah-isme/care-roster-api/pkg/middleware/requestid"
)

type rosterPatientReader interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

type rosterWorkerReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Worker, error)
}

type carePlanStore interface {
	FindByPatientMonth(ctx context.Context, patientID string, year, month int) (*models.CarePlan, error)
	List(ctx context.Context, filter models.CarePlanFilter) ([]models.CarePlan, int, error)
	ListAssignments(ctx context.Context, planID string) ([]models.CarePlanAssignmentDetail, error)
	ListBusy(ctx context.Context, exec sqlx.ExtContext, excludePatientID string, from, to time.Time) ([]models.BusyAssignment, error)
	LockMonth(ctx context.Context, exec sqlx.ExtContext, year, month int) error
	Replace(ctx context.Context, exec sqlx.ExtContext, plan *models.CarePlan, assignments []models.CarePlanAssignment) error
	DeleteByPatientMonth(ctx context.Context, exec sqlx.ExtContext, patientID string, year, month int) error
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RosterServiceConfig governs proposal retention and plan caching.
type RosterServiceConfig struct {
	ProposalTTL time.Duration
	CacheTTL    time.Duration
}

// RosterExport is a rendered plan file.
type RosterExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterService generates, validates and persists monthly care rosters.
type RosterService struct {
	patients  rosterPatientReader
	workers   rosterWorkerReader
	plans     carePlanStore
	cache     rosterCache
	tx        txProvider
	engine    *roster.Engine
	exporter  *export.CSVExporter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	store     *proposalStore
	cfg       RosterServiceConfig
}

// NewRosterService wires roster dependencies.
func NewRosterService(
	patients rosterPatientReader,
	workers rosterWorkerReader,
	plans carePlanStore,
	cache rosterCache,
	tx txProvider,
	engine *roster.Engine,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg RosterServiceConfig,
) *RosterService {
	if engine == nil {
		engine = roster.New(roster.DefaultConfig())
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &RosterService{
		patients:  patients,
		workers:   workers,
		plans:     plans,
		cache:     cache,
		tx:        tx,
		engine:    engine,
		exporter:  export.NewCSVExporter(),
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		store:     newProposalStore(cfg.ProposalTTL),
		cfg:       cfg,
	}
}

// ProposalsHeld counts unexpired proposals awaiting save.
func (s *RosterService) ProposalsHeld() int {
	return s.store.Len()
}

// Generate runs the engine for one patient and month against the current
// plans of other patients and keeps the result as a proposal.
func (s *RosterService) Generate(ctx context.Context, req dto.GenerateRosterRequest, actorID string) (*dto.GenerateRosterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster generation payload")
	}
	if len(req.Preferences) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "at least one worker preference is required")
	}
	if err := s.ensurePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	workers, err := s.loadWorkers(ctx, preferenceWorkerIDs(req.Preferences))
	if err != nil {
		return nil, err
	}

	month := monthOf(req.Year, req.Month)
	seed, err := parseAssignments(month, req.Seed)
	if err != nil {
		return nil, err
	}
	busy, err := s.loadBusy(ctx, nil, req.PatientID, month)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := s.engine.Generate(roster.Request{
		Month:       month,
		Preferences: toEnginePreferences(req.Preferences, workers),
		Seed:        seed,
		Busy:        busy,
	})
	s.metrics.ObserveGeneration(time.Since(start), len(result.Relaxations), len(result.Unfilled))
	violations := roster.ValidateAll(result.Assignments, busy)

	proposal := rosterProposal{
		ID:          uuid.NewString(),
		PatientID:   req.PatientID,
		Month:       month,
		Assignments: result.Assignments,
		CreatedBy:   actorID,
		CreatedAt:   s.store.now().UTC(),
		Meta: map[string]any{
			"algorithm":     "greedy_backfill_v1",
			"relaxedSlots":  len(result.Relaxations),
			"unfilledSlots": len(result.Unfilled),
			"repairPasses":  result.RepairPasses,
			"seedAccepted":  result.SeedAccepted,
			"seedSize":      len(seed),
			"tolerance":     s.engine.Config().Tolerance,
		},
	}
	s.store.Save(proposal)

	fields := []zap.Field{
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("patient_id", req.PatientID),
		zap.String("month", month.String()),
		zap.String("proposal_id", proposal.ID),
		zap.Int("workers", len(result.Preferences)),
		zap.Int("busy", len(busy)),
		zap.Int("relaxed_slots", len(result.Relaxations)),
		zap.Int("unfilled_slots", len(result.Unfilled)),
		zap.Int("repair_passes", result.RepairPasses),
	}
	if len(violations) > 0 {
		s.logger.Warn("roster generated with violations", append(fields, zap.Int("violations", len(violations)))...)
	} else {
		s.logger.Info("roster generated", fields...)
	}

	names := make(map[string]string, len(workers))
	for id, w := range workers {
		names[id] = w.FullName
	}
	unfilled := make([]dto.ShiftRef, 0, len(result.Unfilled))
	for _, ref := range result.Unfilled {
		unfilled = append(unfilled, toShiftRefDTO(ref))
	}
	idle := result.Idle
	if idle == nil {
		idle = []string{}
	}

	return &dto.GenerateRosterResponse{
		ProposalID:   proposal.ID,
		PatientID:    req.PatientID,
		Month:        month.String(),
		Assignments:  toAssignmentDTOs(result.Assignments, names),
		Workers:      toStateDTOs(result.Preferences, result.States),
		Relaxations:  toRelaxationDTOs(result.Relaxations),
		Unfilled:     unfilled,
		Idle:         idle,
		Violations:   toViolationDTOs(violations),
		SeedAccepted: result.SeedAccepted,
		RepairPasses: result.RepairPasses,
		ExpiresAt:    s.store.ExpiresAt(proposal),
	}, nil
}

// Validate checks a candidate plan against the latest plans of other patients.
func (s *RosterService) Validate(ctx context.Context, req dto.ValidateRosterRequest) (*dto.ValidateRosterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster validation payload")
	}
	month := monthOf(req.Year, req.Month)
	candidate, err := parseAssignments(month, req.Assignments)
	if err != nil {
		return nil, err
	}
	busy, err := s.loadBusy(ctx, nil, req.PatientID, month)
	if err != nil {
		return nil, err
	}
	violations := roster.ValidateAll(candidate, busy)
	resp := &dto.ValidateRosterResponse{Valid: len(violations) == 0, Violations: toViolationDTOs(violations)}
	if first := roster.Validate(candidate, busy); first != nil {
		v := toViolationDTO(*first)
		resp.Violation = &v
	}
	return resp, nil
}

type rosterDraft struct {
	patientID   string
	month       roster.Month
	proposalID  string
	assignments []roster.Assignment
	meta        map[string]any
}

// Save persists a proposal or an explicit plan. The month is locked and the
// plan revalidated against a fresh snapshot of other patients' plans before
// the previous plan is replaced. Any violation rejects the save unless
// AcceptRelaxed is set, which lets rest-rule breaches through.
func (s *RosterService) Save(ctx context.Context, req dto.SaveRosterRequest, actorID string) (*dto.RosterPlanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster save payload")
	}
	draft, err := s.resolveDraft(ctx, req)
	if err != nil {
		return nil, err
	}
	workers, err := s.loadWorkers(ctx, assignedWorkerIDs(draft.assignments))
	if err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	started := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	year, month := draft.month.Year, int(draft.month.Month)
	if err = s.plans.LockMonth(ctx, tx, year, month); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock roster month")
		return nil, err
	}
	var busy []roster.BusyAssignment
	busy, err = s.loadBusy(ctx, tx, draft.patientID, draft.month)
	if err != nil {
		return nil, err
	}
	violation, tolerated := blockingViolation(roster.ValidateAll(draft.assignments, busy), req.AcceptRelaxed)
	if violation != nil {
		s.metrics.RecordSaveConflict(string(violation.Reason))
		s.logger.Warn("roster save rejected",
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.String("patient_id", draft.patientID),
			zap.String("month", draft.month.String()),
			zap.String("violation", string(violation.Reason)),
			zap.String("worker_id", violation.WorkerID),
		)
		err = conflictError(violation)
		return nil, err
	}

	if tolerated > 0 {
		draft.meta["acceptedRestViolations"] = tolerated
		s.logger.Warn("roster saved with relaxed rest rules",
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.String("patient_id", draft.patientID),
			zap.String("month", draft.month.String()),
			zap.Int("rest_violations", tolerated),
		)
	}
	unfilled := countUnassigned(draft.assignments)
	draft.meta["unfilledSlots"] = unfilled
	metaBytes, marshalErr := json.Marshal(draft.meta)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode roster metadata")
		return nil, err
	}
	plan := &models.CarePlan{
		PatientID: draft.patientID,
		Year:      year,
		Month:     month,
		Meta:      types.JSONText(metaBytes),
	}
	if actorID != "" {
		plan.CreatedBy = &actorID
	}
	if err = s.plans.Replace(ctx, tx, plan, toModelAssignments(draft.assignments)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist roster")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit roster transaction")
		return nil, err
	}
	s.metrics.ObserveDBQuery("roster_save", time.Since(started))

	if draft.proposalID != "" {
		s.store.Delete(draft.proposalID)
	}
	s.invalidateMonth(ctx, year, month)
	s.logger.Info("roster saved",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("patient_id", draft.patientID),
		zap.String("month", draft.month.String()),
		zap.String("plan_id", plan.ID),
		zap.Int("unfilled_slots", unfilled),
	)

	names := make(map[string]string, len(workers))
	for id, w := range workers {
		names[id] = w.FullName
	}
	return &dto.RosterPlanResponse{
		ID:          plan.ID,
		PatientID:   plan.PatientID,
		Year:        plan.Year,
		Month:       plan.Month,
		Assignments: toAssignmentDTOs(draft.assignments, names),
		Unfilled:    unfilled,
		Meta:        draft.meta,
		CreatedAt:   plan.CreatedAt,
		UpdatedAt:   plan.UpdatedAt,
	}, nil
}

func (s *RosterService) resolveDraft(ctx context.Context, req dto.SaveRosterRequest) (*rosterDraft, error) {
	if req.ProposalID != "" {
		proposal, ok := s.store.Get(req.ProposalID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrProposalExpired, "")
		}
		if req.PatientID != "" && req.PatientID != proposal.PatientID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "patientId does not match the proposal")
		}
		if (req.Year != 0 && req.Year != proposal.Month.Year) || (req.Month != 0 && time.Month(req.Month) != proposal.Month.Month) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "year and month do not match the proposal")
		}
		meta := make(map[string]any, len(proposal.Meta)+3)
		for k, v := range proposal.Meta {
			meta[k] = v
		}
		meta["source"] = "proposal"
		meta["proposalId"] = proposal.ID
		meta["generatedAt"] = proposal.CreatedAt
		assignments := proposal.Assignments
		if len(req.Assignments) > 0 {
			edited, err := parseAssignments(proposal.Month, req.Assignments)
			if err != nil {
				return nil, err
			}
			assignments = edited
			meta["source"] = "edited"
		}
		return &rosterDraft{
			patientID:   proposal.PatientID,
			month:       proposal.Month,
			proposalID:  proposal.ID,
			assignments: completeMonth(proposal.Month, assignments),
			meta:        meta,
		}, nil
	}

	if req.PatientID == "" || req.Year == 0 || req.Month == 0 || len(req.Assignments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposalId or patientId, year, month and assignments are required")
	}
	if err := s.ensurePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	month := monthOf(req.Year, req.Month)
	assignments, err := parseAssignments(month, req.Assignments)
	if err != nil {
		return nil, err
	}
	return &rosterDraft{
		patientID:   req.PatientID,
		month:       month,
		assignments: completeMonth(month, assignments),
		meta:        map[string]any{"source": "manual"},
	}, nil
}

// Get returns the stored plan of a patient for a month.
func (s *RosterService) Get(ctx context.Context, patientID string, year, month int) (*dto.RosterPlanResponse, error) {
	if err := validatePeriod(patientID, year, month); err != nil {
		return nil, err
	}
	key := RosterPlanKey(patientID, year, month)
	if s.cache != nil {
		var cached dto.RosterPlanResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	plan, err := s.plans.FindByPatientMonth(ctx, patientID, year, month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "roster not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	rows, err := s.plans.ListAssignments(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster assignments")
	}

	resp := &dto.RosterPlanResponse{
		ID:          plan.ID,
		PatientID:   plan.PatientID,
		Year:        plan.Year,
		Month:       plan.Month,
		Assignments: detailsToDTOs(rows),
		CreatedAt:   plan.CreatedAt,
		UpdatedAt:   plan.UpdatedAt,
	}
	for _, a := range resp.Assignments {
		if a.WorkerID == "" {
			resp.Unfilled++
		}
	}
	if len(plan.Meta) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(plan.Meta, &meta); err == nil {
			resp.Meta = meta
		}
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	}
	return resp, nil
}

// List returns stored plan summaries.
func (s *RosterService) List(ctx context.Context, query dto.RosterListQuery) ([]dto.RosterPlanSummary, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster list query")
	}
	page, size := query.Page, query.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	plans, total, err := s.plans.List(ctx, models.CarePlanFilter{PatientID: query.PatientID, Year: query.Year, Page: page, PageSize: size})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rosters")
	}
	out := make([]dto.RosterPlanSummary, 0, len(plans))
	for _, p := range plans {
		out = append(out, dto.RosterPlanSummary{ID: p.ID, PatientID: p.PatientID, Year: p.Year, Month: p.Month, UpdatedAt: p.UpdatedAt})
	}
	return out, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes the stored plan of a patient for a month.
func (s *RosterService) Delete(ctx context.Context, patientID string, year, month int) error {
	if err := validatePeriod(patientID, year, month); err != nil {
		return err
	}
	if err := s.plans.DeleteByPatientMonth(ctx, nil, patientID, year, month); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "roster not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete roster")
	}
	s.invalidateMonth(ctx, year, month)
	s.logger.Info("roster deleted", zap.String("patient_id", patientID), zap.String("month", monthOf(year, month).String()))
	return nil
}

// Export renders the stored plan as CSV.
func (s *RosterService) Export(ctx context.Context, patientID string, year, month int) (*RosterExport, error) {
	plan, err := s.Get(ctx, patientID, year, month)
	if err != nil {
		return nil, err
	}
	data, err := s.exporter.Render(rosterDataset(plan, s.engine.Config()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster export")
	}
	return &RosterExport{
		Filename:    rosterExportFilename(patientID, year, month),
		ContentType: s.exporter.ContentType(),
		Data:        data,
	}, nil
}

func (s *RosterService) ensurePatient(ctx context.Context, patientID string) error {
	if s.patients == nil {
		return nil
	}
	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	if !patient.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "patient is inactive")
	}
	return nil
}

func (s *RosterService) loadWorkers(ctx context.Context, ids []string) (map[string]models.Worker, error) {
	out := make(map[string]models.Worker, len(ids))
	if len(ids) == 0 || s.workers == nil {
		return out, nil
	}
	workers, err := s.workers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workers")
	}
	for _, w := range workers {
		out[w.ID] = w
	}
	var missing, inactive []string
	for _, id := range ids {
		w, ok := out[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case !w.Active:
			inactive = append(inactive, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workers: %s", strings.Join(missing, ", ")))
	}
	if len(inactive) > 0 {
		sort.Strings(inactive)
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("inactive workers: %s", strings.Join(inactive, ", ")))
	}
	return out, nil
}

// loadBusy fetches other patients' slots for the month plus the adjacent
// days so rest rules across month edges are checked.
func (s *RosterService) loadBusy(ctx context.Context, exec sqlx.ExtContext, patientID string, month roster.Month) ([]roster.BusyAssignment, error) {
	from := month.Date(1).AddDate(0, 0, -1)
	to := month.Date(month.Days()).AddDate(0, 0, 1)
	start := time.Now()
	rows, err := s.plans.ListBusy(ctx, exec, patientID, from, to)
	s.metrics.ObserveDBQuery("roster_list_busy", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load busy assignments")
	}
	busy, skipped := toEngineBusy(rows)
	if len(skipped) > 0 {
		s.logger.Warn("skipped malformed busy assignments", zap.String("patient_id", patientID), zap.Int("count", len(skipped)))
	}
	return busy, nil
}

func (s *RosterService) invalidateMonth(ctx context.Context, year, month int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, RosterMonthPattern(year, month)); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.Int("year", year), zap.Int("month", month), zap.Error(err))
	}
}
