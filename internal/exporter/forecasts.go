package exporter

import (
	"fmt"
	"path/filepath"

	"hpicli/internal/config"
	"hpicli/internal/forecast"
)

// ForecastExporter handles per-district forecast dumps
type ForecastExporter struct {
	csvWriter *CSVWriter
}

// NewForecastExporter creates a new forecast exporter
func NewForecastExporter(paths *config.Paths) *ForecastExporter {
	return &ForecastExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportDistrictForecasts generates one CSV per analyzed district with the
// observed history followed by every model's projection
func (f *ForecastExporter) ExportDistrictForecasts(report *forecast.PortfolioReport, outputDir string) error {
	for _, district := range report.Districts() {
		bundle, ok := report.Bundle(district)
		if !ok {
			continue
		}

		// Generate filename
		filename := fmt.Sprintf("%s_forecast.csv", district)
		filePath := filepath.Join(outputDir, filename)

		csvRecords := bundleToCSVRows(district, bundle, false)

		// Write CSV file
		if err := f.csvWriter.WriteSimpleCSV(filePath, f.getHeaders(false), csvRecords); err != nil {
			return fmt.Errorf("failed to write forecast file for %s: %w", district, err)
		}
	}

	return nil
}

// ExportCombinedForecasts streams every district's history and projections
// into a single long CSV file
func (f *ForecastExporter) ExportCombinedForecasts(report *forecast.PortfolioReport, outputPath string) error {
	stream, err := f.csvWriter.CreateStreamWriter(outputPath, f.getHeaders(true))
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	for _, district := range report.Districts() {
		bundle, ok := report.Bundle(district)
		if !ok {
			continue
		}
		for _, record := range bundleToCSVRows(district, bundle, true) {
			if err := stream.WriteRecord(record); err != nil {
				stream.Close()
				return fmt.Errorf("failed to write forecast record for %s: %w", district, err)
			}
		}
	}

	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	return nil
}

// getHeaders returns the forecast CSV headers, with a leading District
// column for the combined export
func (f *ForecastExporter) getHeaders(withDistrict bool) []string {
	headers := []string{
		"Date", "Index", "Seasonal", "SeasonalLower", "SeasonalUpper",
		"Linear", "Ensemble",
	}
	if withDistrict {
		return append([]string{"District"}, headers...)
	}
	return headers
}

// bundleToCSVRows flattens a forecast bundle into CSV rows: history rows
// carry only the observed index, projection rows carry the model columns
func bundleToCSVRows(district string, bundle forecast.ForecastBundle, withDistrict bool) [][]string {
	prefix := func(row []string) []string {
		if withDistrict {
			return append([]string{district}, row...)
		}
		return row
	}

	var rows [][]string
	for _, point := range bundle.History.Points {
		rows = append(rows, prefix([]string{
			formatMonth(point.Date),
			formatFloat(point.Price),
			"", "", "", "", "",
		}))
	}

	seasonal := bundle.Projections[forecast.ModelSeasonal]
	linear := bundle.Projections[forecast.ModelLinear]
	ensemble := bundle.Projections[forecast.ModelEnsemble]

	for i, point := range seasonal.Points {
		lower, upper := "", ""
		if seasonal.Band != nil && i < len(seasonal.Band.Lower) {
			lower = formatFloat(seasonal.Band.Lower[i])
			upper = formatFloat(seasonal.Band.Upper[i])
		}
		row := []string{
			formatMonth(point.Date),
			"",
			formatFloat(point.Price),
			lower,
			upper,
			"",
			"",
		}
		if i < len(linear.Points) {
			row[5] = formatFloat(linear.Points[i].Price)
		}
		if i < len(ensemble.Points) {
			row[6] = formatFloat(ensemble.Points[i].Price)
		}
		rows = append(rows, prefix(row))
	}

	return rows
}
