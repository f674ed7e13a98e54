package dataset

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "hpicli/internal/errors"
)

// TestWorkbookLoader tests the wide to long melt of the statistics workbook
func TestWorkbookLoader(t *testing.T) {
	loader := NewWorkbookLoader(testLogger())

	t.Run("melts districts and months", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{
			{"자치구별(1)", "자치구별(2)", "2014. 01", "2014. 02", "2014. 03"},
			{"서울특별시", "소계", 100.1, 100.2, 100.3},
			{"서울특별시", "강남구", 95.5, 96.1, ""},
			{"서울특별시", "마포구", 91.2, "-", 92.0},
		})

		table, err := loader.Load(path)
		require.NoError(t, err)
		require.Len(t, table.Rows, 4)

		// Aggregate row is gone, remaining rows sorted by district then date
		assert.Equal(t, []string{"강남구", "마포구"}, table.Districts())

		first := table.Rows[0]
		assert.Equal(t, "강남구", first.District)
		assert.Equal(t, time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC), first.Date)
		assert.Equal(t, 95.5, first.Price)

		series := table.Series()
		require.Len(t, series, 2)
		assert.Equal(t, "강남구", series[0].District)
		assert.Equal(t, 2, series[0].Len())
		assert.Equal(t, "마포구", series[1].District)
		assert.Equal(t, 2, series[1].Len())
	})

	t.Run("falls back to the second column for labels", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{
			{"지역", "구분", "2014. 01", "2014. 02"},
			{"수도권", "강북구", 88.8, 89.9},
		})

		table, err := loader.Load(path)
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, []string{"강북구"}, table.Districts())
	})

	t.Run("workbook without month columns is corrupt", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{
			{"a", "b", "c"},
			{"서울특별시", "강남구", 95.5},
		})

		_, err := loader.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt")

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrTypeParsing, appErr.Type)
	})

	t.Run("workbook with only aggregate rows is corrupt", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{
			{"자치구별(1)", "자치구별(2)", "2014. 01", "2014. 02"},
			{"서울특별시", "소계", 100.1, 100.2},
			{"서울특별시", "전국", 99.1, 99.2},
		})

		_, err := loader.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt")
	})

	t.Run("missing file is a storage error", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "absent.xlsx"))
		require.Error(t, err)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrTypeStorage, appErr.Type)
	})
}

// TestParseMonthHeader tests the month column header formats
func TestParseMonthHeader(t *testing.T) {
	tests := []struct {
		cell     string
		expected time.Time
		ok       bool
	}{
		{"2014. 01", time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2014.01", time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2014-07", time.Date(2014, 7, 1, 0, 0, 0, 0, time.UTC), true},
		{"2014/3", time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2014-02-15", time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"자치구별(2)", time.Time{}, false},
		{"", time.Time{}, false},
		{"note", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got, ok := parseMonthHeader(tt.cell)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

// TestParsePrice tests numeric coercion of workbook cells
func TestParsePrice(t *testing.T) {
	tests := []struct {
		cell     string
		expected float64
		ok       bool
	}{
		{"95.5", 95.5, true},
		{"1,234.5", 1234.5, true},
		{" 88 ", 88, true},
		{"", 0, false},
		{"-", 0, false},
		{"0", 0, false},
		{"-3.2", 0, false},
		{"n/a", 0, false},
	}

	for _, tt := range tests {
		got, ok := parsePrice(tt.cell)
		assert.Equalf(t, tt.ok, ok, "cell %q", tt.cell)
		if tt.ok {
			assert.Equal(t, tt.expected, got)
		}
	}
}

// writeWorkbook saves a single-sheet workbook with the given rows and returns
// its path
func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "index.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

// testLogger returns a logger that stays quiet unless something goes wrong
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
