package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpicli/internal/config"
	"hpicli/internal/dataset"
	apierrors "hpicli/internal/errors"
	"hpicli/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testPaths builds a Paths rooted at a temporary directory
func testPaths(t *testing.T) *config.Paths {
	t.Helper()

	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	reportsDir := filepath.Join(dataDir, "reports")
	paths := &config.Paths{
		ExecutableDir: tempDir,
		DataDir:       dataDir,
		DownloadsDir:  filepath.Join(dataDir, "downloads"),
		ReportsDir:    reportsDir,
		ForecastsDir:  filepath.Join(reportsDir, "forecasts"),
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(tempDir, "logs"),
		SeriesCSV:     filepath.Join(reportsDir, "district_series.csv"),
	}
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

// seedSeries writes a series cache with two analyzable districts and one
// that is too short
func seedSeries(t *testing.T, paths *config.Paths) {
	t.Helper()

	var rows []dataset.Row
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		rows = append(rows, dataset.Row{
			Date:     start.AddDate(0, i, 0),
			District: "Gangnam",
			Price:    100 + 0.5*float64(i),
		})
	}
	for i := 0; i < 24; i++ {
		rows = append(rows, dataset.Row{
			Date:     start.AddDate(0, i, 0),
			District: "Nowon",
			Price:    95 + 0.1*float64(i),
		})
	}
	for i := 0; i < 6; i++ {
		rows = append(rows, dataset.Row{
			Date:     start.AddDate(0, i, 0),
			District: "Junggu",
			Price:    90,
		})
	}

	require.NoError(t, dataset.SaveCSV(&dataset.Table{Rows: rows}, paths.GetSeriesCSVPath()))
}

// newTestRouter mounts a fresh AnalysisHandler the way the application does
func newTestRouter(t *testing.T) (chi.Router, *services.AnalysisService, *config.Paths) {
	t.Helper()

	paths := testPaths(t)
	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			HorizonMonths: 6,
			Workers:       2,
		},
	}
	service := services.NewAnalysisService(cfg, paths, nil, nil, testLogger())
	handler := NewAnalysisHandler(service, testLogger(), apierrors.NewErrorHandler(testLogger(), false))

	r := chi.NewRouter()
	r.Mount("/api/analysis", handler.Routes())
	return r, service, paths
}

func doJSON(t *testing.T, router chi.Router, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAnalysisHandler_RunAnalysis(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/run", map[string]interface{}{
		"horizon_months": 6,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])

	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["run_id"])
	assert.Equal(t, float64(6), data["horizon_months"])
	assert.Equal(t, float64(3), data["districts"])
	assert.Equal(t, float64(2), data["analyzed"])
	assert.Equal(t, float64(1), data["skipped"])
	assert.Equal(t, float64(0), data["failed"])
}

func TestAnalysisHandler_RunAnalysis_EmptyBodyUsesDefaults(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(6), data["horizon_months"])
	assert.Equal(t, float64(2), data["workers"])
}

func TestAnalysisHandler_RunAnalysis_Validation(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"horizon too large", map[string]interface{}{"horizon_months": 100}},
		{"horizon negative", map[string]interface{}{"horizon_months": -3}},
		{"workers negative", map[string]interface{}{"workers": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/analysis/run", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			body := decodeBody(t, rec)
			assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
			assert.Equal(t, float64(http.StatusBadRequest), body["status"])
		})
	}
}

func TestAnalysisHandler_RunAnalysis_NoDataSource(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "NO_DATA_SOURCE", body["error_code"])
	assert.Equal(t, "/errors/not-found", body["type"])
}

func TestAnalysisHandler_GetStatus(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["running"])
	assert.Nil(t, data["last_run"])

	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec = doJSON(t, router, http.MethodGet, "/api/analysis/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["running"])
	assert.NotNil(t, data["last_run"])
}

func TestAnalysisHandler_GetReport_NoRun(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/report", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "NO_REPORT", body["error_code"])
}

func TestAnalysisHandler_GetReport(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(2), body["count"])

	data := body["data"].(map[string]interface{})
	reports := data["reports"].([]interface{})
	require.Len(t, reports, 2)
	first := reports[0].(map[string]interface{})
	assert.NotEmpty(t, first["district"])
	assert.Contains(t, first, "best_model")
	assert.Contains(t, first, "returns")

	// Model-specific sorts are accepted
	for _, target := range []string{
		"/api/analysis/report?sort=return&model=linear",
		"/api/analysis/report?sort=index&model=ensemble",
		"/api/analysis/report?sort=best",
	} {
		rec := doJSON(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestAnalysisHandler_GetReport_InvalidParams(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/report?sort=alphabetical", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])

	rec = doJSON(t, router, http.MethodGet, "/api/analysis/report?sort=return&model=arima", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])
}

func TestAnalysisHandler_GetDistricts(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/districts", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["count"])

	districts := body["data"].([]interface{})
	require.Len(t, districts, 3)
	first := districts[0].(map[string]interface{})
	assert.Contains(t, first, "district")
	assert.Contains(t, first, "months")
	assert.Contains(t, first, "current_index")
}

func TestAnalysisHandler_GetDistricts_NoData(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/districts", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_DATA_SOURCE", decodeBody(t, rec)["error_code"])
}

func TestAnalysisHandler_GetDistrictBundle(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/districts/Gangnam/bundle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Gangnam", body["district"])

	data := body["data"].(map[string]interface{})
	history := data["history"].(map[string]interface{})
	assert.Equal(t, "Gangnam", history["district"])

	projections := data["projections"].(map[string]interface{})
	assert.Len(t, projections, 3)
	assert.Contains(t, projections, "seasonal")
	assert.Contains(t, projections, "linear")
	assert.Contains(t, projections, "ensemble")
}

func TestAnalysisHandler_GetDistrictBundle_NotFound(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/districts/Atlantis/bundle", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DISTRICT_NOT_FOUND", decodeBody(t, rec)["error_code"])
}

func TestAnalysisHandler_GetDistrictBundle_NoRun(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)

	rec := doJSON(t, router, http.MethodGet, "/api/analysis/districts/Gangnam/bundle", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_REPORT", decodeBody(t, rec)["error_code"])
}

func TestAnalysisHandler_ExportReport(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/export", map[string]interface{}{
		"format": "csv",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	path := data["path"].(string)
	assert.Equal(t, "csv", data["format"])
	assert.FileExists(t, path)
	assert.Equal(t, paths.ReportsDir, filepath.Dir(path))
}

func TestAnalysisHandler_ExportReport_BadFormat(t *testing.T) {
	router, _, paths := newTestRouter(t)
	seedSeries(t, paths)
	doJSON(t, router, http.MethodPost, "/api/analysis/run", nil)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/export", map[string]interface{}{
		"format": "pdf",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])
}

func TestAnalysisHandler_ExportReport_NoBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/analysis/export", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
