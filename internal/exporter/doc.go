// Package exporter provides CSV and XLSX export functionality for the HPI
// district analyzer.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers, streaming,
// and UTF-8 BOM for Excel compatibility.
//
// PortfolioExporter: Handles generation of the ranked portfolio report as CSV
// and as an Excel workbook.
//
// ForecastExporter: Dumps per-district forecast bundles, either one CSV per
// district or a single combined file.
//
// Example usage:
//
//	// Create a portfolio exporter
//	portfolioExporter := exporter.NewPortfolioExporter(paths)
//
//	// Export the ranked portfolio
//	report.SortByBestReturn()
//	err := portfolioExporter.ExportRankingCSV(report, "portfolio_ranking.csv")
//
//	// Create a forecast exporter
//	forecastExporter := exporter.NewForecastExporter(paths)
//
//	// Dump per-district forecasts
//	err = forecastExporter.ExportDistrictForecasts(report, "forecasts")
package exporter
