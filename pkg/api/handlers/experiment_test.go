package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/experiment/memory"
	"github.com/jordanlanch/growthlab/pkg/testdata"
)

func setupTest(t *testing.T) (*echo.Echo, *experiment.Service, *memory.Store) {
	t.Helper()
	e := echo.New()
	e.Validator = NewRequestValidator()
	store := memory.NewStore()
	service := experiment.NewService(store, experiment.DefaultCatalog(), nil, 0, nil)
	return e, service, store
}

func createActiveExperiment(t *testing.T, service *experiment.Service, key string, testType experiment.TestType) *experiment.Experiment {
	t.Helper()
	exp, err := service.CreateExperiment(context.Background(), testdata.Experiment(key, testType, 50))
	require.NoError(t, err)
	return exp
}

func doRequest(e *echo.Echo, handler echo.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = handler(c)
	return rec
}

func TestGetAssignmentHandler(t *testing.T) {
	e, service, _ := setupTest(t)
	handler := NewExperimentHandler(service, nil, nil)

	t.Run("Failure - missing query parameters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/experiments/assignment", nil)
		rec := doRequest(e, handler.GetAssignment, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Success - default config when no experiment matches", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/experiments/assignment?context=skill-page&type=layout&subject_key=user-1", nil)
		rec := doRequest(e, handler.GetAssignment, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["default"])
		assert.NotContains(t, body, "assignment_id")

		cfg, ok := body["config"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "vertical", cfg["orientation"])
	})

	t.Run("Success - assignment for an active experiment, stable across calls", func(t *testing.T) {
		createActiveExperiment(t, service, "layout-test", experiment.TestTypeLayout)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/experiments/assignment?context=skill-page&type=layout&subject_key=user-2", nil)
		rec := doRequest(e, handler.GetAssignment, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var first map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
		assert.Equal(t, false, first["default"])
		assert.NotEmpty(t, first["assignment_id"])
		assert.Contains(t, []interface{}{"A", "B"}, first["variant"])

		rec = doRequest(e, handler.GetAssignment, httptest.NewRequest(http.MethodGet,
			"/api/v1/experiments/assignment?context=skill-page&type=layout&subject_key=user-2", nil))
		var second map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
		assert.Equal(t, first["assignment_id"], second["assignment_id"])
		assert.Equal(t, first["variant"], second["variant"])
	})

	t.Run("Success - anonymous subject never gets an assignment", func(t *testing.T) {
		createActiveExperiment(t, service, "layout-anon", experiment.TestTypeCardStyle)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/experiments/assignment?context=skill-page&type=card_style", nil)
		rec := doRequest(e, handler.GetAssignment, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["default"])
	})
}

func TestRecordConversionHandler(t *testing.T) {
	e, service, store := setupTest(t)
	handler := NewExperimentHandler(service, nil, nil)

	exp := createActiveExperiment(t, service, "conv-test", experiment.TestTypeLayout)
	res := service.GetAssignment(context.Background(), "skill-page", experiment.TestTypeLayout, "user-1")
	require.False(t, res.Default)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/experiments/conversions", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return doRequest(e, handler.RecordConversion, req)
	}

	t.Run("Success - conversion recorded", func(t *testing.T) {
		rec := post(`{"assignment_id":"` + res.AssignmentID + `","conversion_type":"click","resource_id":"resource-1"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		conversions, err := store.ListConversions(context.Background(), exp.ID)
		require.NoError(t, err)
		assert.Len(t, conversions, 1)
	})

	t.Run("Failure - malformed payload", func(t *testing.T) {
		rec := post(`{"assignment_id":"not-a-uuid","conversion_type":"click"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Failure - unknown conversion type", func(t *testing.T) {
		rec := post(`{"assignment_id":"` + res.AssignmentID + `","conversion_type":"purchase"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Stale assignment id is accepted and dropped", func(t *testing.T) {
		rec := post(`{"assignment_id":"` + uuid.NewString() + `","conversion_type":"click"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		conversions, err := store.ListConversions(context.Background(), exp.ID)
		require.NoError(t, err)
		assert.Len(t, conversions, 1, "stale conversion must not be recorded")
	})
}
