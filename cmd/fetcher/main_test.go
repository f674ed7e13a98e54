package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestWorkbookRegex(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		matches  bool
	}{
		{"valid filename", "2025-06 Housing Price Index.xlsx", true},
		{"single digit month padded", "2025-01 Housing Price Index.xlsx", true},
		{"wrong extension", "2025-06 Housing Price Index.pdf", false},
		{"missing month", "2025 Housing Price Index.xlsx", false},
		{"daily report layout", "2025 06 24 Housing Price Index.xlsx", false},
		{"extra text", "2025-06 Housing Price Index draft.xlsx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := workbookRe.FindStringSubmatch(tt.filename)
			if tt.matches {
				assert.NotNil(t, m)
			} else {
				assert.Nil(t, m)
			}
		})
	}
}

func TestLatestDownloadedMonth(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		expected string
		expectOk bool
	}{
		{
			name: "valid workbooks",
			files: []string{
				"2025-01 Housing Price Index.xlsx",
				"2025-03 Housing Price Index.xlsx",
				"2025-02 Housing Price Index.xlsx",
			},
			expected: "2025-03",
			expectOk: true,
		},
		{
			name:     "no matching files",
			files:    []string{"other_file.txt", "report.pdf"},
			expectOk: false,
		},
		{
			name:     "empty directory",
			files:    []string{},
			expectOk: false,
		},
		{
			name: "mixed valid and invalid files",
			files: []string{
				"2024-11 Housing Price Index.xlsx",
				"invalid_file.xlsx",
				"2024-12 Housing Price Index.xlsx",
			},
			expected: "2024-12",
			expectOk: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			for _, filename := range tt.files {
				err := os.WriteFile(filepath.Join(tmpDir, filename), []byte("test content"), 0644)
				require.NoError(t, err)
			}

			result, ok := latestDownloadedMonth(tmpDir)
			if tt.expectOk {
				assert.True(t, ok)
				assert.Equal(t, tt.expected, result.Format("2006-01"))
			} else {
				assert.False(t, ok)
			}
		})
	}

	t.Run("missing directory", func(t *testing.T) {
		_, ok := latestDownloadedMonth(filepath.Join(t.TempDir(), "absent"))
		assert.False(t, ok)
	})
}

func TestScanExistingMonths(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tmpDir := t.TempDir()
	for _, filename := range []string{
		"2025-01 Housing Price Index.xlsx",
		"2025-02 Housing Price Index.xlsx",
		"2025-05 Housing Price Index.xlsx",
		"unrelated.xlsx",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, filename), []byte("x"), 0644))
	}

	assert.Equal(t, 2, scanExistingMonths(tmpDir, month(2025, time.January), month(2025, time.March), logger))
	assert.Equal(t, 3, scanExistingMonths(tmpDir, month(2025, time.January), month(2025, time.December), logger))
	assert.Equal(t, 0, scanExistingMonths(tmpDir, month(2024, time.January), month(2024, time.December), logger))
	assert.Equal(t, 0, scanExistingMonths(filepath.Join(tmpDir, "absent"), month(2025, time.January), month(2025, time.March), logger))
}

func TestCountMonths(t *testing.T) {
	tests := []struct {
		name     string
		from     time.Time
		to       time.Time
		expected int
	}{
		{"same month", month(2025, time.June), month(2025, time.June), 1},
		{"within a year", month(2025, time.January), month(2025, time.June), 6},
		{"across years", month(2024, time.November), month(2025, time.February), 4},
		{"full year", month(2024, time.January), month(2024, time.December), 12},
		{"inverted range", month(2025, time.June), month(2025, time.January), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, countMonths(tt.from, tt.to))
		})
	}
}

func TestCurrentMonth(t *testing.T) {
	m := currentMonth()
	assert.Equal(t, 1, m.Day())
	assert.Equal(t, time.UTC, m.Location())
	assert.Equal(t, time.Now().UTC().Month(), m.Month())
}

func TestDownloadFile(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		statusCode     int
		expectError    bool
	}{
		{
			name:           "successful download",
			serverResponse: "workbook bytes",
			statusCode:     http.StatusOK,
			expectError:    false,
		},
		{
			name:        "server error",
			statusCode:  http.StatusInternalServerError,
			expectError: true,
		},
		{
			name:        "not found",
			statusCode:  http.StatusNotFound,
			expectError: true,
		},
		{
			name:           "empty response",
			serverResponse: "",
			statusCode:     http.StatusOK,
			expectError:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if tt.statusCode == http.StatusOK {
					w.Write([]byte(tt.serverResponse))
				}
			}))
			defer server.Close()

			destPath := filepath.Join(t.TempDir(), "2025-06 Housing Price Index.xlsx")
			err := downloadFile(server.URL, destPath)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			content, err := os.ReadFile(destPath)
			require.NoError(t, err)
			assert.Equal(t, tt.serverResponse, string(content))
		})
	}

	t.Run("unreachable server", func(t *testing.T) {
		err := downloadFile("http://127.0.0.1:1", filepath.Join(t.TempDir(), "out.xlsx"))
		assert.Error(t, err)
	})
}
