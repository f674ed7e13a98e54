package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"hpicli/internal/infrastructure"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeUnauthorized    = "/errors/unauthorized"
	TypeForbidden       = "/errors/forbidden"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypeConflict        = "/errors/conflict"
	TypePayloadTooLarge = "/errors/payload-too-large"
)

// Domain-specific error types
const (
	TypeSeriesNotFound      = "/errors/series/not-found"
	TypeInsufficientHistory = "/errors/series/insufficient-history"
	TypeDataCorrupted       = "/errors/data/corrupted"
	TypeAnalysisNotFound    = "/errors/analysis/not-found"
	TypeAnalysisRunning     = "/errors/analysis/already-running"
	TypeAnalysisFailed      = "/errors/analysis/failed"
	TypeWebSocketUpgrade    = "/errors/websocket/upgrade-failed"
)

// ErrorHandler turns errors into application/problem+json responses and logs
// them with request context
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an error handler. includeStack attaches stack
// traces to problem documents and is meant for development only.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs the error and writes it as a problem document. A nil
// error writes nothing.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := requestTraceID(r)
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// requestTraceID prefers the chi request id and falls back to the trace id
// planted by the custom RequestID middleware
func requestTraceID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return infrastructure.GetTraceID(r.Context())
}

// problemRule maps an error-message substring to a problem document. A rule
// with an empty detail echoes the error's own message.
type problemRule struct {
	substring string
	status    int
	probType  string
	title     string
	detail    string
}

// problemRules is matched in order against err.Error() for errors that carry
// no APIError. The substrings are part of the domain error contract: the
// forecast and dataset packages word their errors to match.
var problemRules = []problemRule{
	{"insufficient history", http.StatusUnprocessableEntity, TypeInsufficientHistory, "Insufficient History", ""},
	{"not found", http.StatusNotFound, TypeNotFound, "Resource Not Found", ""},
	{"corrupt", http.StatusUnprocessableEntity, TypeDataCorrupted, "Data Corrupted", ""},
	{"unauthorized", http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", "Authentication required to access this resource"},
	{"forbidden", http.StatusForbidden, TypeForbidden, "Forbidden", "You don't have permission to access this resource"},
	{"rate limit", http.StatusTooManyRequests, TypeRateLimit, "Rate Limit Exceeded", "Too many requests. Please try again later."},
	{"conflict", http.StatusConflict, TypeConflict, "Conflict", ""},
	{"payload too large", http.StatusRequestEntityTooLarge, TypePayloadTooLarge, "Payload Too Large", "The request body exceeds the maximum allowed size"},
}

// ErrorToProblem converts any error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	message := err.Error()
	for _, rule := range problemRules {
		if !strings.Contains(message, rule.substring) {
			continue
		}
		detail := rule.detail
		if detail == "" {
			detail = message
		}
		problem := NewProblemDetails(rule.status, rule.probType, rule.title, detail, r.URL.Path)
		if rule.status == http.StatusTooManyRequests {
			problem.WithExtension("retry_after", 60)
		}
		return problem
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

// problemTypeForCode maps service error codes onto RFC 7807 problem types
func problemTypeForCode(code string) string {
	switch code {
	case "VALIDATION_FAILED", "INVALID_REQUEST", "INVALID_HORIZON", "INVALID_JSON":
		return TypeValidation
	case "NOT_FOUND", "SERIES_NOT_FOUND", "DISTRICT_NOT_FOUND", "ANALYSIS_NOT_FOUND",
		"NO_REPORT", "NO_DATA_SOURCE":
		return TypeNotFound
	case "UNAUTHORIZED":
		return TypeUnauthorized
	case "FORBIDDEN":
		return TypeForbidden
	case "CONFLICT":
		return TypeConflict
	case "ANALYSIS_RUNNING":
		return TypeAnalysisRunning
	case "ANALYSIS_FAILED":
		return TypeAnalysisFailed
	case "RATE_LIMIT_EXCEEDED":
		return TypeRateLimit
	case "SERVICE_UNAVAILABLE":
		return TypeServiceDown
	default:
		return TypeInternal
	}
}

// apiErrorToProblem converts an APIError, carrying its error code and any
// structured details as extensions
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemTypeForCode(apiErr.ErrorCode),
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic logs a recovered panic with its stack and answers with a
// generic 500 problem document
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound answers an unrouted path with a 404 problem document
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed answers a routed path hit with the wrong verb
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Middleware recovers panics and logs error-status responses for every
// request passing through it
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &errorResponseWriter{
			ResponseWriter: w,
			handler:        h,
			request:        r,
		}
		defer func() {
			if rec := recover(); rec != nil {
				h.HandlePanic(ww, r, rec)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// errorResponseWriter logs 4xx/5xx statuses as they are written. Only the
// first WriteHeader call counts, as with the underlying writer.
type errorResponseWriter struct {
	http.ResponseWriter
	handler *ErrorHandler
	request *http.Request
	written bool
	status  int
}

func (w *errorResponseWriter) WriteHeader(status int) {
	if w.written {
		return
	}
	w.status = status
	w.written = true

	if status >= 400 && status < 600 {
		w.handler.logger.WarnContext(w.request.Context(), "error response",
			slog.Int("status", status),
			slog.String("path", w.request.URL.Path),
			slog.String("method", w.request.Method),
		)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *errorResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// JSON writes v as a JSON response with the given status
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
