package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/service"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
	"github.com/noah-isme/care-roster-api/pkg/response"
)

type rosterService interface {
	Generate(ctx context.Context, req dto.GenerateRosterRequest, actorID string) (*dto.GenerateRosterResponse, error)
	Validate(ctx context.Context, req dto.ValidateRosterRequest) (*dto.ValidateRosterResponse, error)
	Save(ctx context.Context, req dto.SaveRosterRequest, actorID string) (*dto.RosterPlanResponse, error)
	Get(ctx context.Context, patientID string, year, month int) (*dto.RosterPlanResponse, error)
	List(ctx context.Context, query dto.RosterListQuery) ([]dto.RosterPlanSummary, *models.Pagination, error)
	Delete(ctx context.Context, patientID string, year, month int) error
	Export(ctx context.Context, patientID string, year, month int) (*service.RosterExport, error)
}

// RosterHandler exposes roster planning endpoints.
type RosterHandler struct {
	service rosterService
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc rosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// Generate godoc
// @Summary Generate a monthly roster proposal for a patient
// @Description Runs the greedy scheduler and backfill repair against the current busy snapshot. The proposal is kept in memory until saved or expired.
// @Tags Rosters
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRosterRequest true "Generate roster payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /rosters/generate [post]
func (h *RosterHandler) Generate(c *gin.Context) {
	var req dto.GenerateRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"mode": "preview"})
}

// Validate godoc
// @Summary Validate a roster against shift rules and other patients' plans
// @Tags Rosters
// @Accept json
// @Produce json
// @Param payload body dto.ValidateRosterRequest true "Validate roster payload"
// @Success 200 {object} response.Envelope
// @Router /rosters/validate [post]
func (h *RosterHandler) Validate(c *gin.Context) {
	var req dto.ValidateRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validate payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Save godoc
// @Summary Save a roster proposal or an edited plan
// @Description Revalidates inside the save transaction. A rule breach returns 409 with the violation in meta. Relaxed-mode proposals break rest rules and need acceptRelaxed=true or editing before they can be saved.
// @Tags Rosters
// @Accept json
// @Produce json
// @Param payload body dto.SaveRosterRequest true "Save roster payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /rosters/save [post]
func (h *RosterHandler) Save(c *gin.Context) {
	var req dto.SaveRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	plan, err := h.service.Save(c.Request.Context(), req, actorID(c))
	if err != nil {
		if violation, ok := service.ViolationFromError(err); ok {
			response.Error(c, err, map[string]interface{}{"violation": violation})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// List godoc
// @Summary List stored rosters
// @Tags Rosters
// @Produce json
// @Param patientId query string false "Patient ID"
// @Param year query int false "Year"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rosters [get]
func (h *RosterHandler) List(c *gin.Context) {
	query := dto.RosterListQuery{
		PatientID: c.Query("patientId"),
		Year:      parseQueryInt(c, "year", 0),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "pageSize", 20),
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get the stored roster of a patient for a month
// @Tags Rosters
// @Produce json
// @Param patientId path string true "Patient ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rosters/{patientId}/{year}/{month} [get]
func (h *RosterHandler) Get(c *gin.Context) {
	patientID, year, month, ok := rosterPeriod(c)
	if !ok {
		return
	}
	plan, err := h.service.Get(c.Request.Context(), patientID, year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Export godoc
// @Summary Download the stored roster as CSV
// @Tags Rosters
// @Produce text/csv
// @Param patientId path string true "Patient ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {file} binary
// @Router /rosters/{patientId}/{year}/{month}/export [get]
func (h *RosterHandler) Export(c *gin.Context) {
	patientID, year, month, ok := rosterPeriod(c)
	if !ok {
		return
	}
	result, err := h.service.Export(c.Request.Context(), patientID, year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

// Delete godoc
// @Summary Delete the stored roster of a patient for a month
// @Tags Rosters
// @Param patientId path string true "Patient ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 204
// @Router /rosters/{patientId}/{year}/{month} [delete]
func (h *RosterHandler) Delete(c *gin.Context) {
	patientID, year, month, ok := rosterPeriod(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), patientID, year, month); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func rosterPeriod(c *gin.Context) (string, int, int, bool) {
	year, yearErr := strconv.Atoi(c.Param("year"))
	month, monthErr := strconv.Atoi(c.Param("month"))
	if yearErr != nil || monthErr != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and month must be numeric"))
		return "", 0, 0, false
	}
	return c.Param("patientId"), year, month, true
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
