// Package config provides centralized configuration management for the
// district price-index service. It handles loading configuration from
// multiple sources, validation, and path resolution relative to the
// executable location.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern HPI_* for namespacing:
//
//	HPI_SERVER_PORT=8080
//	HPI_LOGGING_LEVEL=info
//	HPI_ANALYSIS_HORIZON_MONTHS=12
//	HPI_ANALYSIS_WORKERS=4
//
// # Path Management
//
// The package provides centralized path management through the Paths type,
// which handles all file system paths relative to the executable location:
//
//	paths, err := config.GetPaths()
//	workbook := paths.GetDownloadPath("2024-06 Housing Price Index.xlsx")
//	report := paths.GetReportPath("portfolio_report_20240630.csv")
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
