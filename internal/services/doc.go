// Package services implements the business logic layer of the HPI analyzer.
// It provides a clean separation between HTTP handlers and the forecast and
// dataset packages, ensuring that business rules are centralized and testable.
//
// # Architecture
//
// Services follow these architectural principles:
//
//  1. Context propagation for cancellation and tracing
//  2. Dependency injection for loose coupling
//  3. Domain-focused methods that encapsulate business rules
//  4. Sentinel errors that handlers map to HTTP problem responses
//
// # Available Services
//
// The package provides these core services:
//
//   - AnalysisService: Runs portfolio analyses and serves the latest report
//   - HealthService: Provides system health checks
//
// # Common Service Pattern
//
// Services typically follow this structure:
//
//	type ServiceName struct {
//	    config *config.Config
//	    paths  *config.Paths
//	    logger *slog.Logger
//	}
//
//	func NewServiceName(cfg *config.Config, paths *config.Paths, logger *slog.Logger) *ServiceName {
//	    if logger == nil {
//	        logger = slog.Default()
//	    }
//	    return &ServiceName{config: cfg, paths: paths, logger: logger}
//	}
//
// # Error Handling
//
// Services return sentinel errors that handlers transform:
//
//   - ErrNoReport when no analysis has completed yet
//   - ErrDistrictNotFound for unknown districts
//   - ErrAnalysisRunning when a run is already in flight
//   - ErrInvalidHorizon / ErrInvalidWorkers for bad run parameters
//
// # Concurrency
//
// AnalysisService guards its published report with a read-write mutex and
// hands sorted copies to callers, so report reads never race a run that is
// publishing new results.
package services
