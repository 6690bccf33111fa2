package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/service"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
	"github.com/noah-isme/care-roster-api/pkg/response"
)

type batchService interface {
	Submit(ctx context.Context, req dto.BatchRosterRequest, actorID string) (*dto.BatchRosterJob, error)
	Status(ctx context.Context, id string) (*dto.BatchRosterJob, error)
	ResolveDownload(ctx context.Context, token string) (*service.BatchDownload, error)
}

// BatchHandler exposes batch roster endpoints.
type BatchHandler struct {
	service batchService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(svc batchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// Submit godoc
// @Summary Queue roster generation for several patients
// @Description Patients are generated and saved in order. Poll the returned job for progress.
// @Tags Rosters
// @Accept json
// @Produce json
// @Param payload body dto.BatchRosterRequest true "Batch payload"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /rosters/batch [post]
func (h *BatchHandler) Submit(c *gin.Context) {
	var req dto.BatchRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	job, err := h.service.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Get batch progress
// @Tags Rosters
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /rosters/batch/{id} [get]
func (h *BatchHandler) Status(c *gin.Context) {
	job, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a batch roster export via signed token
// @Tags Rosters
// @Produce text/csv
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /rosters/exports/download [get]
func (h *BatchHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "text/csv; charset=utf-8", result.File, nil)
}
