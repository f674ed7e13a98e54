package dataset

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "hpicli/internal/errors"
)

// districtHeader is the label column of the statistics workbook. Workbooks
// without it fall back to the second column, which is where the label sits in
// every published layout.
const districtHeader = "자치구별(2)"

// aggregateKeywords mark label rows that are city-wide rollups rather than
// districts and must never enter the dataset
var aggregateKeywords = []string{"소계", "서울", "아파트", "전국"}

// WorkbookLoader melts the wide statistics workbook into a long Table
type WorkbookLoader struct {
	logger *slog.Logger
}

// NewWorkbookLoader creates a loader with the given logger
func NewWorkbookLoader(logger *slog.Logger) *WorkbookLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookLoader{logger: logger}
}

// Load reads a workbook and returns the cleaned long-format table
func (l *WorkbookLoader) Load(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open workbook %s", path), err)
	}
	defer f.Close()

	sheet, rows, err := l.findDataSheet(f)
	if err != nil {
		return nil, err
	}

	header := rows[0]
	months := monthColumns(header)
	districtCol := districtColumn(header)

	l.logger.Info("loading workbook",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("month_columns", len(months)),
		slog.Int("district_column", districtCol))

	var out []Row
	skippedRows := 0
	skippedCells := 0
	for i, row := range rows[1:] {
		if districtCol >= len(row) {
			skippedRows++
			continue
		}
		district := strings.TrimSpace(row[districtCol])
		if district == "" || isAggregate(district) {
			l.logger.Debug("skipping aggregate or empty label row",
				slog.Int("row", i+2),
				slog.String("label", district))
			skippedRows++
			continue
		}

		for col, date := range months {
			if col >= len(row) {
				continue
			}
			price, ok := parsePrice(row[col])
			if !ok {
				if strings.TrimSpace(row[col]) != "" {
					skippedCells++
				}
				continue
			}
			out = append(out, Row{Date: date, District: district, Price: price})
		}
	}

	if len(out) == 0 {
		return nil, apperrors.NewParsingError(
			fmt.Sprintf("workbook %s is corrupt: no usable observations in sheet %s", path, sheet), nil)
	}

	sortRows(out)
	l.logger.Info("workbook loaded",
		slog.String("path", path),
		slog.Int("observations", len(out)),
		slog.Int("skipped_rows", skippedRows),
		slog.Int("skipped_cells", skippedCells))

	return &Table{Rows: out}, nil
}

// findDataSheet returns the first sheet whose header row carries at least two
// parsable month columns
func (l *WorkbookLoader) findDataSheet(f *excelize.File) (string, [][]string, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		if len(monthColumns(rows[0])) >= 2 {
			return name, rows, nil
		}
	}
	return "", nil, apperrors.NewParsingError("workbook is corrupt: no sheet with month columns found", nil)
}

// monthColumns maps header column indexes to the month they label
func monthColumns(header []string) map[int]time.Time {
	months := make(map[int]time.Time)
	for i, cell := range header {
		if date, ok := parseMonthHeader(cell); ok {
			months[i] = date
		}
	}
	return months
}

// districtColumn locates the district label column, defaulting to the second
// column when the canonical header is absent
func districtColumn(header []string) int {
	for i, cell := range header {
		if strings.TrimSpace(cell) == districtHeader {
			return i
		}
	}
	if len(header) > 1 {
		return 1
	}
	return 0
}

// parseMonthHeader parses headers like "2014. 01", "2014-01" or "2014/1"
// into the first day of that month
func parseMonthHeader(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.NewReplacer(".", "-", "/", "-", " ", "").Replace(s)
	for _, layout := range []string{"2006-01", "2006-1", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parsePrice coerces a cell to a positive number, tolerating thousands
// separators. Blanks, placeholders and non-numeric text report false.
func parsePrice(cell string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func isAggregate(district string) bool {
	for _, keyword := range aggregateKeywords {
		if strings.Contains(district, keyword) {
			return true
		}
	}
	return false
}
