package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpicli/internal/config"
)

// newTestWriter creates a CSV writer rooted at a temporary directory
func newTestWriter(t *testing.T) (*CSVWriter, string) {
	t.Helper()

	tempDir := t.TempDir()
	writer := NewCSVWriter(&config.Paths{
		ReportsDir:   filepath.Join(tempDir, "reports"),
		ForecastsDir: filepath.Join(tempDir, "forecasts"),
		DownloadsDir: filepath.Join(tempDir, "downloads"),
		CacheDir:     filepath.Join(tempDir, "cache"),
	})

	return writer, tempDir
}

func TestNewCSVWriter(t *testing.T) {
	paths := &config.Paths{}
	writer := NewCSVWriter(paths)

	assert.NotNil(t, writer)
	assert.Equal(t, paths, writer.paths)
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	tests := []struct {
		name     string
		filePath string
		options  WriteOptions
		validate func(t *testing.T, filePath string)
	}{
		{
			name:     "basic write with headers",
			filePath: "test_basic.csv",
			options: WriteOptions{
				Headers: []string{"District", "Index"},
				Records: [][]string{
					{"Gangnam", "104.20"},
					{"Mapo", "101.75"},
				},
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				lines := strings.Split(strings.TrimSpace(string(content)), "\n")
				assert.Len(t, lines, 3) // header + 2 records
				assert.Equal(t, "District,Index", lines[0])
				assert.Equal(t, "Gangnam,104.20", lines[1])
				assert.Equal(t, "Mapo,101.75", lines[2])
			},
		},
		{
			name:     "write with BOM prefix",
			filePath: "test_bom.csv",
			options: WriteOptions{
				Headers:   []string{"District", "Index"},
				Records:   [][]string{{"강남구", "104.20"}},
				BOMPrefix: true,
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				// Check for UTF-8 BOM
				assert.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))

				// Remove BOM and check content
				contentWithoutBOM := content[3:]
				lines := strings.Split(strings.TrimSpace(string(contentWithoutBOM)), "\n")
				assert.Equal(t, "District,Index", lines[0])
				assert.Equal(t, "강남구,104.20", lines[1])
			},
		},
		{
			name:     "write without headers",
			filePath: "test_no_headers.csv",
			options: WriteOptions{
				Records: [][]string{
					{"2024-01", "100.00"},
					{"2024-02", "100.40"},
				},
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				lines := strings.Split(strings.TrimSpace(string(content)), "\n")
				assert.Len(t, lines, 2)
				assert.Equal(t, "2024-01,100.00", lines[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := writer.WriteCSV(tt.filePath, tt.options)
			require.NoError(t, err)
			tt.validate(t, filepath.Join(tempDir, "reports", tt.filePath))
		})
	}
}

func TestCSVWriter_AppendToCSV(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	err := writer.WriteSimpleCSV("append.csv", []string{"Date", "Index"}, [][]string{
		{"2024-01", "100.00"},
	})
	require.NoError(t, err)

	err = writer.AppendToCSV("append.csv", [][]string{
		{"2024-02", "100.40"},
		{"2024-03", "100.90"},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(tempDir, "reports", "append.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Len(t, lines, 4) // header + 3 records
	assert.Equal(t, "2024-03,100.90", lines[3])
}

func TestCSVWriter_StreamWriter(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	stream, err := writer.CreateStreamWriter("stream.csv", []string{"District", "Date", "Index"})
	require.NoError(t, err)

	records := [][]string{
		{"Gangnam", "2024-01", "100.00"},
		{"Gangnam", "2024-02", "100.40"},
		{"Mapo", "2024-01", "98.20"},
	}
	for _, record := range records {
		require.NoError(t, stream.WriteRecord(record))
	}
	require.NoError(t, stream.Close())

	file, err := os.Open(filepath.Join(tempDir, "reports", "stream.csv"))
	require.NoError(t, err)
	defer file.Close()

	// Skip the BOM before parsing
	bom := make([]byte, 3)
	_, err = file.Read(bom)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, bom)

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, []string{"District", "Date", "Index"}, rows[0])
	assert.Equal(t, []string{"Mapo", "2024-01", "98.20"}, rows[3])
}

func TestCSVWriter_ResolvePath(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	tests := []struct {
		name     string
		filePath string
		want     string
	}{
		{
			name:     "bare filename goes to reports",
			filePath: "ranking.csv",
			want:     filepath.Join(tempDir, "reports", "ranking.csv"),
		},
		{
			name:     "forecasts prefix",
			filePath: "forecasts/gangnam_forecast.csv",
			want:     filepath.Join(tempDir, "forecasts", "gangnam_forecast.csv"),
		},
		{
			name:     "cache prefix",
			filePath: "cache/series.csv",
			want:     filepath.Join(tempDir, "cache", "series.csv"),
		},
		{
			name:     "absolute path unchanged",
			filePath: filepath.Join(tempDir, "elsewhere", "out.csv"),
			want:     filepath.Join(tempDir, "elsewhere", "out.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writer.resolvePath(tt.filePath))
		})
	}
}
