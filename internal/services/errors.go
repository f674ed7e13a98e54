package services

import "errors"

// Analysis service errors
var (
	// Report errors
	ErrNoReport         = errors.New("no analysis report available")
	ErrDistrictNotFound = errors.New("district not found")

	// Run errors
	ErrAnalysisRunning = errors.New("analysis already running")
	ErrNoDataSource    = errors.New("no price index data found")

	// Request errors
	ErrInvalidHorizon = errors.New("invalid forecast horizon")
	ErrInvalidWorkers = errors.New("invalid worker count")
	ErrInvalidInput   = errors.New("invalid input")

	// Export errors
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
