package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jordanlanch/growthlab/pkg/api/errors"
	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/logger"
	"github.com/jordanlanch/growthlab/pkg/metrics"
	"github.com/jordanlanch/growthlab/pkg/models"
	"github.com/labstack/echo/v4"
)

// ExperimentHandler handles the public assignment and conversion endpoints
type ExperimentHandler struct {
	service *experiment.Service
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewExperimentHandler creates a new experiment handler
func NewExperimentHandler(service *experiment.Service, m *metrics.Metrics, log logger.Logger) *ExperimentHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ExperimentHandler{
		service: service,
		metrics: m,
		log:     log,
	}
}

// GetAssignment godoc
// @Summary Get or create a variant assignment
// @Description Returns the subject's variant configuration for the active experiment matching the page context and test type. Falls back to the default configuration (never an error) when no experiment applies.
// @Tags Experiments
// @Accept json
// @Produce json
// @Param context query string true "Page context (e.g. skill-page)"
// @Param type query string true "Test type (layout, cta_placement, thumbnail, card_style, description_length)"
// @Param subject_key query string false "Stable subject key; omit for anonymous visitors"
// @Success 200 {object} experiment.Resolution "Assignment or default configuration"
// @Failure 400 {object} models.ErrorResponse "Missing context or type"
// @Router /experiments/assignment [get]
func (h *ExperimentHandler) GetAssignment(c echo.Context) error {
	testContext := c.QueryParam("context")
	testType := experiment.TestType(c.QueryParam("type"))
	subjectKey := c.QueryParam("subject_key")

	if testContext == "" || testType == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Query parameters 'context' and 'type' are required.",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res := h.service.GetAssignment(ctx, testContext, testType, subjectKey)

	if h.metrics != nil {
		if res.Default {
			h.metrics.RecordDefaultServed(res.Reason)
		} else {
			h.metrics.RecordAssignment(string(res.Variant), res.Created)
		}
	}

	return c.JSON(http.StatusOK, res)
}

// RecordConversion godoc
// @Summary Record a conversion event
// @Description Records a conversion against an assignment. Fire-and-forget: stale assignment ids are logged and dropped, never surfaced to the end user.
// @Tags Experiments
// @Accept json
// @Produce json
// @Param request body models.RecordConversionRequest true "Conversion details"
// @Success 202 "Accepted"
// @Failure 400 {object} models.ErrorResponse "Malformed payload"
// @Router /experiments/conversions [post]
func (h *ExperimentHandler) RecordConversion(c echo.Context) error {
	var req models.RecordConversionRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.service.RecordConversion(ctx, req.AssignmentID, experiment.ConversionType(req.ConversionType), req.ResourceID)
	if err != nil {
		// The caller already rendered the page; a lost conversion must not
		// break anything downstream.
		h.log.Warn("conversion dropped", "assignment_id", req.AssignmentID, "type", req.ConversionType, "error", err)
		return c.NoContent(http.StatusAccepted)
	}

	if h.metrics != nil {
		h.metrics.RecordConversion(req.ConversionType)
	}

	return c.NoContent(http.StatusAccepted)
}
