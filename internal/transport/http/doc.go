// Package http implements the HTTP request handlers for the HPI web service.
// It is a thin layer between transport and business logic: handlers parse and
// validate requests, call the service layer, and format responses.
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handlers
//
// AnalysisHandler exposes the analysis lifecycle under /api/analysis:
//
//	POST /run                          start an analysis run
//	GET  /status                       run-in-flight flag + last run summary
//	GET  /report?sort=&model=          ranked portfolio report
//	GET  /districts                    available districts with coverage
//	GET  /districts/{district}/bundle  full forecast artifact for charting
//	POST /export                       write the latest report to disk
//
// HealthHandler exposes health, readiness, liveness, version and system
// stats. ClientLogHandler receives browser-side log entries and forwards
// them into the structured log.
//
// # Error Handling
//
// Service sentinel errors are mapped with errors.Is onto APIError values and
// rendered as RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "No analysis report available; run an analysis first",
//	    "error_code": "NO_REPORT"
//	}
//
// Request bodies are validated with go-playground/validator struct tags
// before they reach the service layer.
//
// # Testing
//
// Handlers are tested with httptest against a real AnalysisService backed by
// temp-dir fixtures, covering success envelopes, error mapping, and
// parameter validation.
package http
