package dataset

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "hpicli/internal/errors"
)

// utf8BOM keeps exported files readable in Excel
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVLoader reads the canonical long-format CSV: a header row followed by
// date,district,price records
type CSVLoader struct {
	logger *slog.Logger
}

// NewCSVLoader creates a loader with the given logger
func NewCSVLoader(logger *slog.Logger) *CSVLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLoader{logger: logger}
}

// Load reads a long-format CSV into a Table
func (l *CSVLoader) Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open csv %s", path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("csv %s is corrupt", path), err)
	}
	if len(records) < 2 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("csv %s is corrupt: no data rows", path), nil)
	}

	dateCol, districtCol, priceCol, err := csvColumns(records[0])
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("csv %s is corrupt", path), err)
	}

	var out []Row
	skipped := 0
	for i, record := range records[1:] {
		if len(record) <= dateCol || len(record) <= districtCol || len(record) <= priceCol {
			skipped++
			continue
		}
		date, ok := parseCSVDate(record[dateCol])
		district := strings.TrimSpace(record[districtCol])
		price, priceOK := parsePrice(record[priceCol])
		if !ok || district == "" || !priceOK {
			l.logger.Debug("skipping unparsable csv record",
				slog.String("path", path),
				slog.Int("line", i+2))
			skipped++
			continue
		}
		out = append(out, Row{Date: date, District: district, Price: price})
	}

	if len(out) == 0 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("csv %s is corrupt: no usable rows", path), nil)
	}

	sortRows(out)
	l.logger.Info("csv loaded",
		slog.String("path", path),
		slog.Int("observations", len(out)),
		slog.Int("skipped", skipped))

	return &Table{Rows: out}, nil
}

// SaveCSV writes the table as a UTF-8 CSV with a BOM so Excel renders the
// district names correctly
func SaveCSV(table *Table, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create csv directory", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create csv %s", path), err)
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return apperrors.NewStorageError("failed to write BOM", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "district", "price"}); err != nil {
		return apperrors.NewStorageError("failed to write csv header", err)
	}
	for _, r := range table.Rows {
		record := []string{
			r.Date.Format("2006-01-02"),
			r.District,
			strconv.FormatFloat(r.Price, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return apperrors.NewStorageError("failed to write csv record", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// csvColumns locates the three canonical columns by header name
func csvColumns(header []string) (dateCol, districtCol, priceCol int, err error) {
	dateCol, districtCol, priceCol = -1, -1, -1
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, string(utf8BOM)))) {
		case "date":
			dateCol = i
		case "district":
			districtCol = i
		case "price":
			priceCol = i
		}
	}
	if dateCol < 0 || districtCol < 0 || priceCol < 0 {
		return 0, 0, 0, fmt.Errorf("header must name date, district and price columns, got %v", header)
	}
	return dateCol, districtCol, priceCol, nil
}

func parseCSVDate(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
