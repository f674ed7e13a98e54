package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"hpicli/internal/config"
	"hpicli/internal/forecast"
)

// PortfolioExporter handles ranked portfolio report generation
type PortfolioExporter struct {
	csvWriter *CSVWriter
}

// NewPortfolioExporter creates a new portfolio report exporter
func NewPortfolioExporter(paths *config.Paths) *PortfolioExporter {
	return &PortfolioExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportRankingCSV writes the portfolio ranking to a CSV file. Rows are
// written in report order, so callers sort the report first; the rank column
// is the row position after sorting.
func (p *PortfolioExporter) ExportRankingCSV(report *forecast.PortfolioReport, outputPath string) error {
	var csvRecords [][]string
	for i, r := range report.Reports {
		csvRecords = append(csvRecords, p.reportToCSVRow(i+1, r))
	}

	if err := p.csvWriter.WriteSimpleCSV(outputPath, p.getHeaders(), csvRecords); err != nil {
		return fmt.Errorf("failed to write portfolio ranking: %w", err)
	}

	return nil
}

// ExportRankingXLSX writes the portfolio ranking to an Excel workbook: a
// Summary sheet with the run facts, the ranked Portfolio sheet and, when
// districts were excluded, a Skipped sheet.
func (p *PortfolioExporter) ExportRankingXLSX(report *forecast.PortfolioReport, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet("Summary"); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if _, err := f.NewSheet("Portfolio"); err != nil {
		return fmt.Errorf("failed to create portfolio sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex("Portfolio"); err == nil {
		f.SetActiveSheet(idx)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create label style: %w", err)
	}
	numberStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	p.writeSummary(f, report, labelStyle)

	// Header row
	headers := p.getHeaders()
	for col, header := range headers {
		f.SetCellValue("Portfolio", cellName(1, col+1), header)
	}
	f.SetCellStyle("Portfolio", "A1", cellName(1, len(headers)), headerStyle)
	f.SetColWidth("Portfolio", "A", "A", 6)
	f.SetColWidth("Portfolio", "B", "B", 22)
	f.SetColWidth("Portfolio", "C", columnName(len(headers)), 15)

	// One row per district, numeric cells so spreadsheet formulas work
	for i, r := range report.Reports {
		row := i + 2
		f.SetCellValue("Portfolio", cellName(row, 1), i+1)
		f.SetCellValue("Portfolio", cellName(row, 2), r.District)
		f.SetCellValue("Portfolio", cellName(row, 3), r.CurrentPrice)
		f.SetCellValue("Portfolio", cellName(row, 4), r.BestModel.String())
		f.SetCellValue("Portfolio", cellName(row, 5), r.Errors[r.BestModel])
		f.SetCellValue("Portfolio", cellName(row, 6), r.BestReturn())
		f.SetCellValue("Portfolio", cellName(row, 7), r.FutureIndex(r.BestModel))
		col := 8
		for _, kind := range forecast.ModelKinds() {
			f.SetCellValue("Portfolio", cellName(row, col), r.Returns[kind])
			f.SetCellValue("Portfolio", cellName(row, col+1), r.Errors[kind])
			f.SetCellValue("Portfolio", cellName(row, col+2), r.FutureIndex(kind))
			col += 3
		}
	}
	if len(report.Reports) > 0 {
		f.SetCellStyle("Portfolio", "C2",
			cellName(len(report.Reports)+1, len(headers)), numberStyle)
	}

	// Districts excluded from the ranking go on their own sheet
	if len(report.Skipped) > 0 {
		if _, err := f.NewSheet("Skipped"); err != nil {
			return fmt.Errorf("failed to create skipped sheet: %w", err)
		}
		f.SetCellValue("Skipped", "A1", "District")
		f.SetCellStyle("Skipped", "A1", "A1", headerStyle)
		f.SetColWidth("Skipped", "A", "A", 22)
		for i, district := range report.Skipped {
			f.SetCellValue("Skipped", cellName(i+2, 1), district)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	return nil
}

// writeSummary fills the Summary sheet with the facts a reader checks before
// the ranking itself
func (p *PortfolioExporter) writeSummary(f *excelize.File, report *forecast.PortfolioReport, labelStyle int) {
	labels := []string{"Generated", "Horizon (months)", "Districts ranked", "Districts skipped"}
	values := []interface{}{
		report.GeneratedAt.Format("2006-01-02 15:04 MST"),
		report.Horizon,
		len(report.Reports),
		len(report.Skipped),
	}
	if len(report.Reports) > 0 {
		top := report.Reports[0]
		labels = append(labels, "Top district", "Top expected return %")
		values = append(values, top.District, top.BestReturn())
	}

	for i := range labels {
		f.SetCellValue("Summary", cellName(i+1, 1), labels[i])
		f.SetCellValue("Summary", cellName(i+1, 2), values[i])
	}
	f.SetCellStyle("Summary", "A1", cellName(len(labels), 1), labelStyle)
	f.SetColWidth("Summary", "A", "A", 24)
	f.SetColWidth("Summary", "B", "B", 20)
}

// getHeaders returns the ranking CSV headers. The per-model column triples
// follow the fixed seasonal, linear, ensemble order.
func (p *PortfolioExporter) getHeaders() []string {
	return []string{
		"Rank", "District", "CurrentIndex", "BestModel", "BestError",
		"ExpectedReturn", "ProjectedIndex",
		"SeasonalReturn", "SeasonalError", "SeasonalIndex",
		"LinearReturn", "LinearError", "LinearIndex",
		"EnsembleReturn", "EnsembleError", "EnsembleIndex",
	}
}

// reportToCSVRow converts one district report to a ranking CSV row
func (p *PortfolioExporter) reportToCSVRow(rank int, r forecast.DistrictReport) []string {
	row := []string{
		formatInt(rank),
		r.District,
		formatFloat(r.CurrentPrice),
		r.BestModel.String(),
		formatFloat(r.Errors[r.BestModel]),
		formatFloat(r.BestReturn()),
		formatFloat(r.FutureIndex(r.BestModel)),
	}
	for _, kind := range forecast.ModelKinds() {
		row = append(row,
			formatFloat(r.Returns[kind]),
			formatFloat(r.Errors[kind]),
			formatFloat(r.FutureIndex(kind)))
	}
	return row
}

// columnName returns the Excel column letters for a 1-based column number
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// cellName returns the Excel cell reference for a 1-based row and column
func cellName(row, col int) string {
	return fmt.Sprintf("%s%d", columnName(col), row)
}
