package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/middleware"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/roster"
	"github.com/noah-isme/care-roster-api/internal/service"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
)

type rosterServiceMock struct {
	generateResp *dto.GenerateRosterResponse
	validateResp *dto.ValidateRosterResponse
	plan         *dto.RosterPlanResponse
	list         []dto.RosterPlanSummary
	pagination   *models.Pagination
	export       *service.RosterExport
	err          error

	lastActor string
	lastQuery dto.RosterListQuery
	lastYear  int
	lastMonth int
}

func (m *rosterServiceMock) Generate(ctx context.Context, req dto.GenerateRosterRequest, actorID string) (*dto.GenerateRosterResponse, error) {
	m.lastActor = actorID
	return m.generateResp, m.err
}

func (m *rosterServiceMock) Validate(ctx context.Context, req dto.ValidateRosterRequest) (*dto.ValidateRosterResponse, error) {
	return m.validateResp, m.err
}

func (m *rosterServiceMock) Save(ctx context.Context, req dto.SaveRosterRequest, actorID string) (*dto.RosterPlanResponse, error) {
	m.lastActor = actorID
	return m.plan, m.err
}

func (m *rosterServiceMock) Get(ctx context.Context, patientID string, year, month int) (*dto.RosterPlanResponse, error) {
	m.lastYear, m.lastMonth = year, month
	return m.plan, m.err
}

func (m *rosterServiceMock) List(ctx context.Context, query dto.RosterListQuery) ([]dto.RosterPlanSummary, *models.Pagination, error) {
	m.lastQuery = query
	return m.list, m.pagination, m.err
}

func (m *rosterServiceMock) Delete(ctx context.Context, patientID string, year, month int) error {
	return m.err
}

func (m *rosterServiceMock) Export(ctx context.Context, patientID string, year, month int) (*service.RosterExport, error) {
	return m.export, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func periodParams(patientID, year, month string) gin.Params {
	return gin.Params{{Key: "patientId", Value: patientID}, {Key: "year", Value: year}, {Key: "month", Value: month}}
}

func TestRosterHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &rosterServiceMock{generateResp: &dto.GenerateRosterResponse{ProposalID: "prop-1", PatientID: "p1", Month: "2025-06"}}
	handler := NewRosterHandler(mockSvc)

	payload, _ := json.Marshal(dto.GenerateRosterRequest{PatientID: "p1", Year: 2025, Month: 6, Preferences: []dto.WorkerPreferenceRequest{{WorkerID: "w1"}}})
	c, w := newGinContext(http.MethodPost, "/rosters/generate", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "coord-1", Role: models.RoleCoordinator})

	handler.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "coord-1", mockSvc.lastActor)

	var body struct {
		Data dto.GenerateRosterResponse `json:"data"`
		Meta map[string]string          `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "prop-1", body.Data.ProposalID)
	assert.Equal(t, "preview", body.Meta["mode"])
}

func TestRosterHandlerGenerateInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{})

	c, w := newGinContext(http.MethodPost, "/rosters/generate", []byte("{"))
	handler.Generate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRosterHandlerSaveConflictIncludesViolation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	violation := &roster.Violation{
		WorkerID: "w1",
		Date:     time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		Shift:    roster.ShiftDay,
		Reason:   roster.ReasonSameDay,
	}
	conflict := appErrors.Wrap(violation, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, violation.Message())
	handler := NewRosterHandler(&rosterServiceMock{err: conflict})

	payload, _ := json.Marshal(dto.SaveRosterRequest{ProposalID: "prop-1"})
	c, w := newGinContext(http.MethodPost, "/rosters/save", payload)
	handler.Save(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Meta struct {
			Violation dto.RosterViolation `json:"violation"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
	assert.Equal(t, "same_day", body.Meta.Violation.Reason)
	assert.Equal(t, "2025-06-04", body.Meta.Violation.Date)
}

func TestRosterHandlerSaveCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{plan: &dto.RosterPlanResponse{ID: "plan-1"}})

	payload, _ := json.Marshal(dto.SaveRosterRequest{ProposalID: "prop-1"})
	c, w := newGinContext(http.MethodPost, "/rosters/save", payload)
	handler.Save(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRosterHandlerGetRejectsBadPeriod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{})

	c, w := newGinContext(http.MethodGet, "/rosters/p1/2025/june", nil)
	c.Params = periodParams("p1", "2025", "june")
	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRosterHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &rosterServiceMock{plan: &dto.RosterPlanResponse{ID: "plan-1", PatientID: "p1", Year: 2025, Month: 6}}
	handler := NewRosterHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/rosters/p1/2025/6", nil)
	c.Params = periodParams("p1", "2025", "6")
	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2025, mockSvc.lastYear)
	assert.Equal(t, 6, mockSvc.lastMonth)
}

func TestRosterHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "roster not found")})

	c, w := newGinContext(http.MethodGet, "/rosters/p1/2025/6", nil)
	c.Params = periodParams("p1", "2025", "6")
	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRosterHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &rosterServiceMock{
		list:       []dto.RosterPlanSummary{{ID: "plan-1", PatientID: "p1", Year: 2025, Month: 6}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}
	handler := NewRosterHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/rosters?patientId=p1&year=2025&page=2&pageSize=10", nil)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.RosterListQuery{PatientID: "p1", Year: 2025, Page: 2, PageSize: 10}, mockSvc.lastQuery)

	var body struct {
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 11, body.Pagination.TotalCount)
}

func TestRosterHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{export: &service.RosterExport{
		Filename:    "roster-p1-2025-06.csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        []byte("date,shift\n"),
	}})

	c, w := newGinContext(http.MethodGet, "/rosters/p1/2025/6/export", nil)
	c.Params = periodParams("p1", "2025", "6")
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "roster-p1-2025-06.csv")
	assert.Equal(t, "date,shift\n", w.Body.String())
}

func TestRosterHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRosterHandler(&rosterServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/rosters/p1/2025/6", nil)
	c.Params = periodParams("p1", "2025", "6")
	handler.Delete(c)
	// gin defers writing the status header until something flushes it.
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}
