package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"hpicli/internal/config"
	apierrors "hpicli/internal/errors"
	"hpicli/internal/forecast"
	"hpicli/internal/services"
)

// AnalysisHandler handles analysis-related HTTP requests with RFC 7807 compliance
type AnalysisHandler struct {
	service      *services.AnalysisService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate
}

// NewAnalysisHandler creates a new analysis handler with RFC 7807 error handling
func NewAnalysisHandler(service *services.AnalysisService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		errorHandler: errorHandler,
		validate:     validator.New(),
	}
}

// RunRequest is the POST /run body. All fields are optional; zero values fall
// back to the configured defaults.
type RunRequest struct {
	HorizonMonths int    `json:"horizon_months" validate:"omitempty,min=1,max=60"`
	Workers       int    `json:"workers" validate:"omitempty,min=1,max=64"`
	SourcePath    string `json:"source_path,omitempty"`
}

// ExportRequest is the POST /export body
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv xlsx"`
}

// Routes returns the analysis routes with proper Chi patterns
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Use render for consistent JSON responses
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/run", h.RunAnalysis)
	r.Get("/status", h.GetStatus)
	r.Get("/report", h.GetReport)
	r.Get("/districts", h.GetDistricts)
	r.Post("/export", h.ExportReport)

	// Sub-resource routes
	r.Route("/districts/{district}", func(r chi.Router) {
		r.Use(h.DistrictCtx) // Validate district parameter
		r.Get("/bundle", h.GetDistrictBundle)
	})

	return r
}

// DistrictCtx middleware validates the district parameter
func (h *AnalysisHandler) DistrictCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		district := chi.URLParam(r, "district")
		if district == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("district", "District name is required"))
			return
		}

		if len([]rune(district)) > 64 {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("district", "District name is too long"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RunAnalysis handles POST /api/analysis/run with RFC 7807 errors
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	// An empty body runs with the configured defaults
	var req RunRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}

	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, h.validationError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "starting analysis run",
		slog.String("request_id", reqID),
		slog.Int("horizon_months", req.HorizonMonths),
		slog.Int("workers", req.Workers),
		slog.String("source_path", req.SourcePath),
	)

	summary, err := h.service.RunAnalysis(r.Context(), services.AnalysisRequest{
		HorizonMonths: req.HorizonMonths,
		Workers:       req.Workers,
		SourcePath:    req.SourcePath,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "analysis run failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		// Map service errors to API errors
		switch {
		case errors.Is(err, services.ErrAnalysisRunning):
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusConflict,
				"ANALYSIS_RUNNING",
				"An analysis run is already in progress",
			))
		case errors.Is(err, services.ErrInvalidHorizon):
			h.errorHandler.HandleError(w, r, apierrors.InvalidHorizonError(
				req.HorizonMonths, config.MinHorizonMonths, config.MaxHorizonMonths))
		case errors.Is(err, services.ErrInvalidWorkers):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("workers", "Workers must be at least 1"))
		case errors.Is(err, services.ErrNoDataSource):
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_DATA_SOURCE",
				"No price index data found; fetch or convert a workbook first",
			))
		case errors.Is(err, services.ErrInvalidInput):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("source_path", err.Error()))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   summary,
	})
}

// GetStatus handles GET /api/analysis/status
func (h *AnalysisHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   h.service.Status(r.Context()),
	})
}

// GetReport handles GET /api/analysis/report with RFC 7807 errors.
// Query parameters: sort (best|return|index) and model
// (seasonal|linear|ensemble) for the model-specific sorts.
func (h *AnalysisHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	sortBy := r.URL.Query().Get("sort")
	validSorts := map[string]bool{
		"":       true,
		"best":   true,
		"return": true,
		"index":  true,
	}
	if !validSorts[sortBy] {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("sort", "Invalid sort. Must be one of: best, return, index"))
		return
	}

	model := forecast.ModelSeasonal
	if name := r.URL.Query().Get("model"); name != "" {
		parsed, err := forecast.ParseModelKind(name)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("model", "Invalid model. Must be one of: seasonal, linear, ensemble"))
			return
		}
		model = parsed
	}

	h.logger.InfoContext(r.Context(), "fetching ranked report",
		slog.String("request_id", reqID),
		slog.String("sort", sortBy),
		slog.String("model", model.String()),
	)

	report, err := h.service.RankedReport(r.Context(), sortBy, model)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get report",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrNoReport) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_REPORT",
				"No analysis report available; run an analysis first",
			))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   report,
		"count":  len(report.Reports),
	})
}

// GetDistricts handles GET /api/analysis/districts with RFC 7807 errors
func (h *AnalysisHandler) GetDistricts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.InfoContext(r.Context(), "listing districts",
		slog.String("request_id", reqID),
	)

	districts, err := h.service.Districts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list districts",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrNoDataSource) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_DATA_SOURCE",
				"No price index data found; fetch or convert a workbook first",
			))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   districts,
		"count":  len(districts),
	})
}

// GetDistrictBundle handles GET /api/analysis/districts/{district}/bundle
// with RFC 7807 errors
func (h *AnalysisHandler) GetDistrictBundle(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	district := chi.URLParam(r, "district")

	h.logger.InfoContext(r.Context(), "fetching district bundle",
		slog.String("request_id", reqID),
		slog.String("district", district),
	)

	bundle, err := h.service.DistrictBundle(r.Context(), district)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get district bundle",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("district", district),
		)

		if errors.Is(err, services.ErrNoReport) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_REPORT",
				"No analysis report available; run an analysis first",
			))
			return
		}

		if errors.Is(err, services.ErrDistrictNotFound) {
			h.errorHandler.HandleError(w, r, apierrors.DistrictNotFoundError(district))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status":   "success",
		"data":     bundle,
		"district": district,
	})
}

// ExportReport handles POST /api/analysis/export with RFC 7807 errors
func (h *AnalysisHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	var req ExportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, h.validationError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "exporting report",
		slog.String("request_id", reqID),
		slog.String("format", req.Format),
	)

	path, err := h.service.ExportLatest(r.Context(), req.Format)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export report",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("format", req.Format),
		)

		switch {
		case errors.Is(err, services.ErrNoReport):
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_REPORT",
				"No analysis report available; run an analysis first",
			))
		case errors.Is(err, services.ErrUnsupportedFormat):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("format", "Invalid format. Must be one of: csv, xlsx"))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"path":   path,
			"format": req.Format,
		},
	})
}

// validationError converts validator failures into an RFC 7807 payload
func (h *AnalysisHandler) validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	validationErrors := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatFieldError(fe),
		})
	}
	return apierrors.NewValidationErrors(validationErrors)
}

func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag())
	}
}
