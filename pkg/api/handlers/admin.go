package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/jordanlanch/growthlab/pkg/api/errors"
	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/models"
	"github.com/labstack/echo/v4"
)

// AdminHandler handles the operator-facing experiment endpoints. Unlike the
// public assignment path, these surface hard errors.
type AdminHandler struct {
	service *experiment.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *experiment.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// ListExperiments godoc
// @Summary List all experiments
// @Tags Admin
// @Produce json
// @Security AdminToken
// @Success 200 {object} map[string]interface{} "Experiment definitions"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /admin/experiments [get]
func (h *AdminHandler) ListExperiments(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	experiments, err := h.service.ListExperiments(ctx)
	if err != nil {
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"experiments": experiments,
		"total":       len(experiments),
	})
}

// CreateExperiment godoc
// @Summary Create an experiment
// @Tags Admin
// @Accept json
// @Produce json
// @Security AdminToken
// @Param request body models.CreateExperimentRequest true "Experiment definition"
// @Success 201 {object} experiment.Experiment "Created experiment"
// @Failure 400 {object} models.ErrorResponse "Invalid definition"
// @Failure 409 {object} models.ErrorResponse "Key already exists"
// @Router /admin/experiments [post]
func (h *AdminHandler) CreateExperiment(c echo.Context) error {
	var req models.CreateExperimentRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	exp := &experiment.Experiment{
		Key:               req.Key,
		Name:              req.Name,
		Description:       req.Description,
		TestType:          experiment.TestType(req.TestType),
		TestContext:       req.TestContext,
		TrafficAllocation: req.TrafficAllocation,
		Active:            req.Active,
		EndDate:           req.EndDate,
	}
	if req.StartDate != nil {
		exp.StartDate = *req.StartDate
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	created, err := h.service.CreateExperiment(ctx, exp)
	if err != nil {
		if stderrors.Is(err, experiment.ErrExperimentExists) {
			return errors.ConflictError(c, "An experiment with this key already exists.")
		}
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusCreated, created)
}

// GetResults godoc
// @Summary Get experiment results
// @Description Returns per-variant assignment counts, percentages and conversion breakdowns. Results with 50 or fewer assignments are flagged provisional; the winner field is advisory only.
// @Tags Admin
// @Produce json
// @Security AdminToken
// @Param key path string true "Experiment key"
// @Success 200 {object} map[string]interface{} "Aggregate results"
// @Failure 404 {object} models.ErrorResponse "Experiment not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /admin/experiments/{key}/results [get]
func (h *AdminHandler) GetResults(c echo.Context) error {
	key := c.Param("key")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	results, err := h.service.ComputeResults(ctx, key)
	if err != nil {
		if stderrors.Is(err, experiment.ErrExperimentNotFound) {
			return errors.NotFoundError(c, "experiment")
		}
		return errors.DatabaseError(c, err)
	}

	resp := map[string]interface{}{
		"results": results,
	}
	if winner, ok := experiment.PickWinner(results); ok {
		resp["winner"] = winner
	}

	return c.JSON(http.StatusOK, resp)
}

// SetActive godoc
// @Summary Toggle an experiment's active flag
// @Description Activates or deactivates an experiment. Already-persisted assignments keep their configuration snapshots.
// @Tags Admin
// @Accept json
// @Produce json
// @Security AdminToken
// @Param key path string true "Experiment key"
// @Param request body models.SetActiveRequest true "Active flag"
// @Success 200 {object} map[string]interface{} "Updated state"
// @Failure 400 {object} models.ErrorResponse "Malformed payload"
// @Failure 404 {object} models.ErrorResponse "Experiment not found"
// @Router /admin/experiments/{key}/active [patch]
func (h *AdminHandler) SetActive(c echo.Context) error {
	key := c.Param("key")

	var req models.SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.service.SetActive(ctx, key, *req.Active); err != nil {
		if stderrors.Is(err, experiment.ErrExperimentNotFound) {
			return errors.NotFoundError(c, "experiment")
		}
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"key":    key,
		"active": *req.Active,
	})
}
