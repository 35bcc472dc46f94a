package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/growthlab/pkg/experiment"
)

func postJSON(e *echo.Echo, handler echo.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return doRequest(e, handler, req)
}

func TestCreateExperimentHandler(t *testing.T) {
	e, service, _ := setupTest(t)
	handler := NewAdminHandler(service)

	t.Run("Success - create experiment", func(t *testing.T) {
		rec := postJSON(e, handler.CreateExperiment, "/api/v1/admin/experiments",
			`{"key":"skill-layout","name":"Skill page layout","test_type":"layout","test_context":"skill-page","traffic_allocation":50,"active":true}`)

		require.Equal(t, http.StatusCreated, rec.Code)

		var exp experiment.Experiment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
		assert.Equal(t, "skill-layout", exp.Key)
		assert.NotEmpty(t, exp.ID)
		assert.True(t, exp.Active)
		assert.False(t, exp.StartDate.IsZero())
	})

	t.Run("Failure - duplicate key", func(t *testing.T) {
		rec := postJSON(e, handler.CreateExperiment, "/api/v1/admin/experiments",
			`{"key":"skill-layout","name":"Duplicate","test_type":"layout","test_context":"skill-page","traffic_allocation":50}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Failure - invalid traffic allocation", func(t *testing.T) {
		rec := postJSON(e, handler.CreateExperiment, "/api/v1/admin/experiments",
			`{"key":"bad-split","name":"Bad split","test_type":"layout","test_context":"skill-page","traffic_allocation":140}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Failure - unknown test type", func(t *testing.T) {
		rec := postJSON(e, handler.CreateExperiment, "/api/v1/admin/experiments",
			`{"key":"color-test","name":"Color test","test_type":"color_scheme","test_context":"skill-page","traffic_allocation":50}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListExperimentsHandler(t *testing.T) {
	e, service, _ := setupTest(t)
	handler := NewAdminHandler(service)

	createActiveExperiment(t, service, "exp-one", experiment.TestTypeLayout)
	createActiveExperiment(t, service, "exp-two", experiment.TestTypeThumbnail)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/experiments", nil)
	rec := doRequest(e, handler.ListExperiments, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Experiments []experiment.Experiment `json:"experiments"`
		Total       int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Experiments, 2)
}

func TestSetActiveHandler(t *testing.T) {
	e, service, _ := setupTest(t)
	handler := NewAdminHandler(service)

	createActiveExperiment(t, service, "toggle-me", experiment.TestTypeLayout)

	patch := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/experiments/"+key+"/active", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/v1/admin/experiments/:key/active")
		c.SetParamNames("key")
		c.SetParamValues(key)
		_ = handler.SetActive(c)
		return rec
	}

	t.Run("Success - deactivate", func(t *testing.T) {
		rec := patch("toggle-me", `{"active":false}`)
		require.Equal(t, http.StatusOK, rec.Code)

		exp, err := service.ListExperiments(context.Background())
		require.NoError(t, err)
		assert.False(t, exp[0].Active)
	})

	t.Run("Failure - unknown experiment", func(t *testing.T) {
		rec := patch("missing", `{"active":true}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Failure - missing active field", func(t *testing.T) {
		rec := patch("toggle-me", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetResultsHandler(t *testing.T) {
	e, service, store := setupTest(t)
	handler := NewAdminHandler(service)

	exp := createActiveExperiment(t, service, "results-test", experiment.TestTypeLayout)

	for i, subject := range []string{"u1", "u2", "u3"} {
		variant := experiment.VariantA
		if i == 2 {
			variant = experiment.VariantB
		}
		_, _, err := store.CreateAssignment(context.Background(), &experiment.Assignment{
			ID:           uuid.NewString(),
			SubjectKey:   subject,
			ExperimentID: exp.ID,
			Variant:      variant,
			Config:       experiment.LayoutConfig{Orientation: "vertical"},
			AssignedAt:   time.Now(),
		})
		require.NoError(t, err)
	}

	get := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/experiments/"+key+"/results", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/v1/admin/experiments/:key/results")
		c.SetParamNames("key")
		c.SetParamValues(key)
		_ = handler.GetResults(c)
		return rec
	}

	t.Run("Success - aggregate results, provisional sample has no winner", func(t *testing.T) {
		rec := get("results-test")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Results experiment.ExperimentResults `json:"results"`
			Winner  *experiment.Variant          `json:"winner"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 3, body.Results.TotalAssignments)
		assert.Equal(t, 2, body.Results.VariantA.Assignments)
		assert.True(t, body.Results.Provisional)
		assert.Nil(t, body.Winner)
	})

	t.Run("Failure - unknown experiment", func(t *testing.T) {
		rec := get("missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
