package middleware

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC 7807 problem details object. Middlewares that
// answer before a handler runs (panics, rate limits, timeouts) use it so the
// whole API speaks problem+json.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Trace  string `json:"trace_id,omitempty"`
}

// Render writes the problem document with the proper content type
func (p Problem) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	return json.NewEncoder(w).Encode(p)
}

// problemTypeByStatus maps the statuses middleware can produce to problem
// type URIs. Anything else falls back to /errors/unknown.
var problemTypeByStatus = map[int]string{
	http.StatusBadRequest:            "/errors/bad-request",
	http.StatusUnauthorized:          "/errors/unauthorized",
	http.StatusForbidden:             "/errors/forbidden",
	http.StatusNotFound:              "/errors/not-found",
	http.StatusMethodNotAllowed:      "/errors/method-not-allowed",
	http.StatusConflict:              "/errors/conflict",
	http.StatusRequestEntityTooLarge: "/errors/payload-too-large",
	http.StatusTooManyRequests:       "/errors/rate-limit-exceeded",
	http.StatusInternalServerError:   "/errors/internal-server-error",
	http.StatusServiceUnavailable:    "/errors/service-unavailable",
	http.StatusGatewayTimeout:        "/errors/gateway-timeout",
}

// ProblemFromStatus creates a Problem from an HTTP status code
func ProblemFromStatus(status int, detail string, traceID string) Problem {
	probType, ok := problemTypeByStatus[status]
	if !ok {
		probType = "/errors/unknown"
	}
	return Problem{
		Type:   probType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Trace:  traceID,
	}
}

// NotFoundHandler answers unknown routes with a problem document
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ProblemFromStatus(http.StatusNotFound, "The requested resource does not exist", GetReqID(r.Context())).Render(w, r)
	}
}

// MethodNotAllowedHandler answers unsupported methods with a problem document
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ProblemFromStatus(http.StatusMethodNotAllowed, "The method is not allowed for the requested resource", GetReqID(r.Context())).Render(w, r)
	}
}
