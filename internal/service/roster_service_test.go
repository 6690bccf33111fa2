package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/roster"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
)

type stubPatients struct {
	patients map[string]models.Patient
	err      error
}

func (s *stubPatients) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.patients[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

type stubWorkers struct {
	workers []models.Worker
	err     error
}

func (s *stubWorkers) FindByIDs(ctx context.Context, ids []string) ([]models.Worker, error) {
	if s.err != nil {
		return nil, s.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Worker
	for _, w := range s.workers {
		if want[w.ID] {
			out = append(out, w)
		}
	}
	return out, nil
}

type stubPlans struct {
	busy      []models.BusyAssignment
	busyErr   error
	busyCalls []sqlx.ExtContext

	lockCalls  int
	replaced   *models.CarePlan
	replacedTo []models.CarePlanAssignment
	replaceErr error

	plan    *models.CarePlan
	details []models.CarePlanAssignmentDetail
	findErr error

	list   []models.CarePlan
	total  int
	filter models.CarePlanFilter

	deleteErr error
}

func (s *stubPlans) FindByPatientMonth(ctx context.Context, patientID string, year, month int) (*models.CarePlan, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.plan == nil {
		return nil, sql.ErrNoRows
	}
	return s.plan, nil
}

func (s *stubPlans) List(ctx context.Context, filter models.CarePlanFilter) ([]models.CarePlan, int, error) {
	s.filter = filter
	return s.list, s.total, nil
}

func (s *stubPlans) ListAssignments(ctx context.Context, planID string) ([]models.CarePlanAssignmentDetail, error) {
	return s.details, nil
}

func (s *stubPlans) ListBusy(ctx context.Context, exec sqlx.ExtContext, excludePatientID string, from, to time.Time) ([]models.BusyAssignment, error) {
	s.busyCalls = append(s.busyCalls, exec)
	return s.busy, s.busyErr
}

func (s *stubPlans) LockMonth(ctx context.Context, exec sqlx.ExtContext, year, month int) error {
	s.lockCalls++
	return nil
}

func (s *stubPlans) Replace(ctx context.Context, exec sqlx.ExtContext, plan *models.CarePlan, assignments []models.CarePlanAssignment) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	plan.ID = "plan-1"
	s.replaced = plan
	s.replacedTo = assignments
	return nil
}

func (s *stubPlans) DeleteByPatientMonth(ctx context.Context, exec sqlx.ExtContext, patientID string, year, month int) error {
	return s.deleteErr
}

type stubCache struct {
	data        map[string][]byte
	invalidated []string
}

func (s *stubCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.data == nil {
		s.data = map[string][]byte{}
	}
	s.data[key] = raw
	return nil
}

func (s *stubCache) Invalidate(ctx context.Context, pattern string) error {
	s.invalidated = append(s.invalidated, pattern)
	return nil
}

type rosterFixture struct {
	svc     *RosterService
	plans   *stubPlans
	cache   *stubCache
	metrics *MetricsService
	mock    sqlmock.Sqlmock
}

func newRosterFixture(t *testing.T) *rosterFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	patients := &stubPatients{patients: map[string]models.Patient{
		"p1":       {ID: "p1", FullName: "Oma Sri", Active: true},
		"inactive": {ID: "inactive", Active: false},
	}}
	workers := &stubWorkers{workers: []models.Worker{
		{ID: "w1", FullName: "Ana", Active: true, MonthlyCapacityHours: 200},
		{ID: "w2", FullName: "Budi", Active: true, MonthlyCapacityHours: 200},
		{ID: "w3", FullName: "Citra", Active: true, MonthlyCapacityHours: 200},
		{ID: "w4", FullName: "Dewi", Active: false},
	}}
	plans := &stubPlans{}
	cache := &stubCache{}
	metrics := NewMetricsService()
	svc := NewRosterService(patients, workers, plans, cache, sqlx.NewDb(db, "sqlmock"), roster.New(roster.DefaultConfig()), nil, metrics, nil, RosterServiceConfig{})
	return &rosterFixture{svc: svc, plans: plans, cache: cache, metrics: metrics, mock: mock}
}

func floatRef(v float64) *float64 { return &v }

func juneRequest(workerIDs ...string) dto.GenerateRosterRequest {
	prefs := make([]dto.WorkerPreferenceRequest, 0, len(workerIDs))
	for _, id := range workerIDs {
		prefs = append(prefs, dto.WorkerPreferenceRequest{WorkerID: id, Days: floatRef(20)})
	}
	return dto.GenerateRosterRequest{PatientID: "p1", Year: 2025, Month: 6, Preferences: prefs}
}

func appStatus(err error) int {
	return appErrors.FromError(err).Status
}

func TestRosterServiceGenerateAvoidsBusySlots(t *testing.T) {
	f := newRosterFixture(t)
	f.plans.busy = []models.BusyAssignment{
		{PatientID: "p2", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "day", WorkerID: "w1"},
	}

	resp, err := f.svc.Generate(context.Background(), juneRequest("w1", "w2", "w3"), "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ProposalID)
	assert.Equal(t, "2025-06", resp.Month)
	require.Len(t, resp.Assignments, 60)
	assert.Equal(t, "2025-06-01", resp.Assignments[0].Date)
	assert.Equal(t, "day", resp.Assignments[0].Shift)
	assert.NotEqual(t, "w1", resp.Assignments[0].WorkerID)
	assert.NotEmpty(t, resp.Assignments[1].WorkerID)
	assert.NotEqual(t, "w1", resp.Assignments[1].WorkerID)
	for _, v := range resp.Violations {
		assert.False(t, strings.HasPrefix(v.Reason, "busy_"), "busy conflicts are never produced: %+v", v)
	}
	require.Len(t, resp.Workers, 3)
	assert.Equal(t, "w1", resp.Workers[0].WorkerID)
	assert.Equal(t, 1, f.svc.store.Len())
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	require.Len(t, f.plans.busyCalls, 1)
	assert.Nil(t, f.plans.busyCalls[0])
}

func TestRosterServiceGeneratePreconditions(t *testing.T) {
	f := newRosterFixture(t)

	cases := map[string]struct {
		req    dto.GenerateRosterRequest
		status int
		msg    string
	}{
		"no preferences":   {req: dto.GenerateRosterRequest{PatientID: "p1", Year: 2025, Month: 6}, status: 412},
		"unknown patient":  {req: func() dto.GenerateRosterRequest { r := juneRequest("w1"); r.PatientID = "nobody"; return r }(), status: 404},
		"inactive patient": {req: func() dto.GenerateRosterRequest { r := juneRequest("w1"); r.PatientID = "inactive"; return r }(), status: 412},
		"unknown worker":   {req: juneRequest("w1", "w9"), status: 400, msg: "w9"},
		"inactive worker":  {req: juneRequest("w1", "w4"), status: 412, msg: "w4"},
		"bad month":        {req: func() dto.GenerateRosterRequest { r := juneRequest("w1"); r.Month = 13; return r }(), status: 400},
		"seed outside month": {req: func() dto.GenerateRosterRequest {
			r := juneRequest("w1")
			r.Seed = []dto.RosterAssignment{{Date: "2025-07-01", Shift: "day", WorkerID: "w1"}}
			return r
		}(), status: 400, msg: "outside"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Generate(context.Background(), tc.req, "user-1")
			require.Error(t, err)
			assert.Equal(t, tc.status, appStatus(err))
			if tc.msg != "" {
				assert.Contains(t, appErrors.FromError(err).Message, tc.msg)
			}
		})
	}
}

func TestRosterServiceSaveProposal(t *testing.T) {
	f := newRosterFixture(t)
	gen, err := f.svc.Generate(context.Background(), juneRequest("w1", "w2", "w3"), "user-1")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	saved, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{ProposalID: gen.ProposalID}, "user-1")
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	assert.Equal(t, "plan-1", saved.ID)
	assert.Equal(t, "proposal", saved.Meta["source"])
	require.NotNil(t, f.plans.replaced)
	assert.Equal(t, "p1", f.plans.replaced.PatientID)
	assert.Equal(t, 2025, f.plans.replaced.Year)
	assert.Equal(t, 6, f.plans.replaced.Month)
	require.NotNil(t, f.plans.replaced.CreatedBy)
	assert.Equal(t, "user-1", *f.plans.replaced.CreatedBy)
	assert.Len(t, f.plans.replacedTo, 60)
	assert.Equal(t, 1, f.plans.lockCalls)
	require.Len(t, f.plans.busyCalls, 2)
	assert.NotNil(t, f.plans.busyCalls[1], "save reads the busy snapshot inside the transaction")
	assert.Equal(t, []string{"roster:plan:*:2025-06"}, f.cache.invalidated)
	assert.Equal(t, 0, f.svc.store.Len())

	_, err = f.svc.Save(context.Background(), dto.SaveRosterRequest{ProposalID: gen.ProposalID}, "user-1")
	assert.Equal(t, 410, appStatus(err))
}

func TestRosterServiceSaveRejectsBusyConflict(t *testing.T) {
	f := newRosterFixture(t)
	f.plans.busy = []models.BusyAssignment{
		{PatientID: "p2", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "day", WorkerID: "w1"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{{Date: "2025-06-01", Shift: "day", WorkerID: "w1"}},
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, 409, appStatus(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	violation, ok := ViolationFromError(err)
	require.True(t, ok)
	assert.Equal(t, "busy_same_slot", violation.Reason)
	assert.Equal(t, "w1", violation.WorkerID)
	assert.Equal(t, "p2", violation.PatientID)
	assert.Equal(t, violation.Message, appErrors.FromError(err).Message)
	assert.Nil(t, f.plans.replaced)
	assert.Empty(t, f.cache.invalidated)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.saveConflicts.WithLabelValues("busy_same_slot")))
}

func TestRosterServiceSaveRejectsNightToDay(t *testing.T) {
	f := newRosterFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{
			{Date: "2025-06-01", Shift: "night", WorkerID: "w1"},
			{Date: "2025-06-02", Shift: "day", WorkerID: "w1"},
		},
	}, "user-1")
	require.Error(t, err)
	violation, ok := ViolationFromError(err)
	require.True(t, ok)
	assert.Equal(t, "night_to_day", violation.Reason)
	assert.Equal(t, "2025-06-01", violation.Date)
	assert.Equal(t, "2025-06-02", violation.NextDate)
}

func TestRosterServiceSaveAcceptRelaxedStoresRestViolations(t *testing.T) {
	f := newRosterFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	saved, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{
			{Date: "2025-06-01", Shift: "night", WorkerID: "w1"},
			{Date: "2025-06-02", Shift: "day", WorkerID: "w1"},
			{Date: "2025-06-03", Shift: "day", WorkerID: "w2"},
			{Date: "2025-06-03", Shift: "night", WorkerID: "w2"},
		},
		AcceptRelaxed: true,
	}, "user-1")
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 2, saved.Meta["acceptedRestViolations"])
	require.NotNil(t, f.plans.replaced)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.saveConflicts.WithLabelValues("night_to_day")))
}

func TestRosterServiceSaveAcceptRelaxedKeepsBusyConflicts(t *testing.T) {
	f := newRosterFixture(t)
	f.plans.busy = []models.BusyAssignment{
		{PatientID: "p2", Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), ShiftType: "day", WorkerID: "w1"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{
			{Date: "2025-06-01", Shift: "night", WorkerID: "w1"},
			{Date: "2025-06-02", Shift: "day", WorkerID: "w1"},
		},
		AcceptRelaxed: true,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, 409, appStatus(err))
	violation, ok := ViolationFromError(err)
	require.True(t, ok)
	assert.Equal(t, "busy_same_slot", violation.Reason)
	assert.Nil(t, f.plans.replaced)
}

func TestRosterServiceSaveManualFillsMissingSlots(t *testing.T) {
	f := newRosterFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	saved, err := f.svc.Save(context.Background(), dto.SaveRosterRequest{
		PatientID: "p1", Year: 2025, Month: 2,
		Assignments: []dto.RosterAssignment{{Date: "2025-02-03", Shift: "night", WorkerID: "w2", Note: "covering"}},
	}, "")
	require.NoError(t, err)
	require.Len(t, saved.Assignments, 56)
	assert.Equal(t, 55, saved.Unfilled)
	assert.Equal(t, "manual", saved.Meta["source"])
	assert.Nil(t, f.plans.replaced.CreatedBy)

	night := saved.Assignments[5]
	assert.Equal(t, "2025-02-03", night.Date)
	assert.Equal(t, "night", night.Shift)
	assert.Equal(t, "w2", night.WorkerID)
	assert.Equal(t, "Budi", night.WorkerName)
	assert.Equal(t, "covering", night.Note)
}

func TestRosterServiceSaveValidation(t *testing.T) {
	f := newRosterFixture(t)

	cases := map[string]struct {
		req    dto.SaveRosterRequest
		status int
	}{
		"empty":            {req: dto.SaveRosterRequest{}, status: 400},
		"unknown proposal": {req: dto.SaveRosterRequest{ProposalID: "missing"}, status: 410},
		"outside month": {req: dto.SaveRosterRequest{PatientID: "p1", Year: 2025, Month: 6,
			Assignments: []dto.RosterAssignment{{Date: "2025-05-31", Shift: "day", WorkerID: "w1"}}}, status: 400},
		"duplicate slot": {req: dto.SaveRosterRequest{PatientID: "p1", Year: 2025, Month: 6,
			Assignments: []dto.RosterAssignment{
				{Date: "2025-06-01", Shift: "day", WorkerID: "w1"},
				{Date: "2025-06-01", Shift: "day", WorkerID: "w2"},
			}}, status: 400},
		"unknown worker": {req: dto.SaveRosterRequest{PatientID: "p1", Year: 2025, Month: 6,
			Assignments: []dto.RosterAssignment{{Date: "2025-06-01", Shift: "day", WorkerID: "w9"}}}, status: 400},
		"bad shift": {req: dto.SaveRosterRequest{PatientID: "p1", Year: 2025, Month: 6,
			Assignments: []dto.RosterAssignment{{Date: "2025-06-01", Shift: "evening", WorkerID: "w1"}}}, status: 400},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Save(context.Background(), tc.req, "user-1")
			require.Error(t, err)
			assert.Equal(t, tc.status, appStatus(err))
		})
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterServiceSaveRejectsProposalMismatch(t *testing.T) {
	f := newRosterFixture(t)
	gen, err := f.svc.Generate(context.Background(), juneRequest("w1", "w2"), "user-1")
	require.NoError(t, err)

	_, err = f.svc.Save(context.Background(), dto.SaveRosterRequest{ProposalID: gen.ProposalID, PatientID: "p9"}, "user-1")
	assert.Equal(t, 400, appStatus(err))
	_, err = f.svc.Save(context.Background(), dto.SaveRosterRequest{ProposalID: gen.ProposalID, Month: 7}, "user-1")
	assert.Equal(t, 400, appStatus(err))
}

func TestRosterServiceValidate(t *testing.T) {
	f := newRosterFixture(t)

	resp, err := f.svc.Validate(context.Background(), dto.ValidateRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{
			{Date: "2025-06-01", Shift: "day", WorkerID: "w1"},
			{Date: "2025-06-01", Shift: "night", WorkerID: "w1"},
		},
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	require.NotNil(t, resp.Violation)
	assert.Equal(t, "same_day", resp.Violation.Reason)
	assert.Equal(t, "2025-06-01", resp.Violation.Date)
	assert.Len(t, resp.Violations, 1)

	resp, err = f.svc.Validate(context.Background(), dto.ValidateRosterRequest{
		PatientID: "p1", Year: 2025, Month: 6,
		Assignments: []dto.RosterAssignment{{Date: "2025-06-01", Shift: "day", WorkerID: "w1"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Nil(t, resp.Violation)
}

func TestRosterServiceGetUsesCache(t *testing.T) {
	f := newRosterFixture(t)
	worker := "w1"
	name := "Ana"
	f.plans.plan = &models.CarePlan{ID: "plan-1", PatientID: "p1", Year: 2025, Month: 6, Meta: []byte(`{"source":"manual"}`)}
	f.plans.details = []models.CarePlanAssignmentDetail{
		{CarePlanAssignment: models.CarePlanAssignment{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "day", WorkerID: &worker}, WorkerName: &name},
		{CarePlanAssignment: models.CarePlanAssignment{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "night"}},
	}

	plan, err := f.svc.Get(context.Background(), "p1", 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Unfilled)
	assert.Equal(t, "Ana", plan.Assignments[0].WorkerName)
	assert.Equal(t, "manual", plan.Meta["source"])
	assert.Contains(t, f.cache.data, "roster:plan:p1:2025-06")

	f.plans.plan = nil
	cached, err := f.svc.Get(context.Background(), "p1", 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", cached.ID)

	_, err = f.svc.Get(context.Background(), "p1", 2025, 7)
	assert.Equal(t, 404, appStatus(err))
	_, err = f.svc.Get(context.Background(), "p1", 2025, 0)
	assert.Equal(t, 400, appStatus(err))
}

func TestRosterServiceDelete(t *testing.T) {
	f := newRosterFixture(t)
	require.NoError(t, f.svc.Delete(context.Background(), "p1", 2025, 6))
	assert.Equal(t, []string{"roster:plan:*:2025-06"}, f.cache.invalidated)

	f.plans.deleteErr = sql.ErrNoRows
	assert.Equal(t, 404, appStatus(f.svc.Delete(context.Background(), "p1", 2025, 6)))

	f.plans.deleteErr = errors.New("boom")
	assert.Equal(t, 500, appStatus(f.svc.Delete(context.Background(), "p1", 2025, 6)))
}

func TestRosterServiceList(t *testing.T) {
	f := newRosterFixture(t)
	f.plans.list = []models.CarePlan{{ID: "plan-1", PatientID: "p1", Year: 2025, Month: 6}}
	f.plans.total = 41

	items, page, err := f.svc.List(context.Background(), dto.RosterListQuery{PatientID: "p1", Page: 3})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 41, page.TotalCount)
	assert.Equal(t, models.CarePlanFilter{PatientID: "p1", Page: 3, PageSize: 20}, f.plans.filter)
}

func TestRosterServiceExport(t *testing.T) {
	f := newRosterFixture(t)
	worker := "w1"
	name := "Ana"
	f.plans.plan = &models.CarePlan{ID: "plan-1", PatientID: "p1", Year: 2025, Month: 6}
	f.plans.details = []models.CarePlanAssignmentDetail{
		{CarePlanAssignment: models.CarePlanAssignment{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "day", WorkerID: &worker}, WorkerName: &name},
		{CarePlanAssignment: models.CarePlanAssignment{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ShiftType: "night"}},
	}

	out, err := f.svc.Export(context.Background(), "p1", 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, "roster-p1-2025-06.csv", out.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
	lines := strings.Split(strings.TrimSpace(string(out.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,shift,worker_id,worker_name,hours,note", lines[0])
	assert.Equal(t, "2025-06-01,day,w1,Ana,8,", lines[1])
	assert.Equal(t, "2025-06-01,night,,,,", lines[2])
}
