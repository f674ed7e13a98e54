package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)
	require.NotNil(t, paths)

	assert.True(t, filepath.IsAbs(paths.ExecutableDir))
	assert.Equal(t, filepath.Join(paths.ExecutableDir, "data"), paths.DataDir)
	assert.Equal(t, filepath.Join(paths.DataDir, "downloads"), paths.DownloadsDir)
	assert.Equal(t, filepath.Join(paths.DataDir, "reports"), paths.ReportsDir)
	assert.Equal(t, filepath.Join(paths.ReportsDir, "forecasts"), paths.ForecastsDir)
	assert.Equal(t, filepath.Join(paths.ReportsDir, "district_series.csv"), paths.SeriesCSV)
}

func TestPathAccessors(t *testing.T) {
	paths := &Paths{
		ExecutableDir: "/opt/hpi",
		DataDir:       "/opt/hpi/data",
		DownloadsDir:  "/opt/hpi/data/downloads",
		ReportsDir:    "/opt/hpi/data/reports",
		ForecastsDir:  "/opt/hpi/data/reports/forecasts",
		CacheDir:      "/opt/hpi/data/cache",
		LogsDir:       "/opt/hpi/logs",
		WebDir:        "/opt/hpi/web",
		SeriesCSV:     "/opt/hpi/data/reports/district_series.csv",
	}

	assert.Equal(t, "/opt/hpi/data/downloads/index.xlsx", paths.GetDownloadPath("index.xlsx"))
	assert.Equal(t, "/opt/hpi/data/reports/out.csv", paths.GetReportPath("out.csv"))
	assert.Equal(t, "/opt/hpi/data/reports/forecasts/gangnam.csv", paths.GetForecastPath("gangnam.csv"))
	assert.Equal(t, "/opt/hpi/data/cache/tmp.bin", paths.GetCachePath("tmp.bin"))
	assert.Equal(t, "/opt/hpi/logs/app.log", paths.GetLogPath("app.log"))
	assert.Equal(t, "/opt/hpi/web/index.html", paths.GetWebFilePath("index.html"))
	assert.Equal(t, "/opt/hpi/extra", paths.GetRelativePath("extra"))
	assert.Equal(t, "/opt/hpi/data/reports/district_series.csv", paths.GetSeriesCSVPath())
}

func TestWorkbookPathForMonth(t *testing.T) {
	paths := &Paths{DownloadsDir: "/opt/hpi/data/downloads"}

	month := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t,
		"/opt/hpi/data/downloads/2024-06 Housing Price Index.xlsx",
		paths.GetWorkbookPathForMonth(month))
}

func TestPortfolioReportPath(t *testing.T) {
	paths := &Paths{ReportsDir: "/opt/hpi/data/reports"}

	date := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t,
		"/opt/hpi/data/reports/portfolio_report_20240630.csv",
		paths.GetPortfolioReportPath(date, "csv"))
	assert.Equal(t,
		"/opt/hpi/data/reports/portfolio_report_20240630.xlsx",
		paths.GetPortfolioReportPath(date, "xlsx"))
}

func TestEnsureDirectories(t *testing.T) {
	tempDir := t.TempDir()

	paths := &Paths{
		DataDir:      filepath.Join(tempDir, "data"),
		DownloadsDir: filepath.Join(tempDir, "data", "downloads"),
		ReportsDir:   filepath.Join(tempDir, "data", "reports"),
		ForecastsDir: filepath.Join(tempDir, "data", "reports", "forecasts"),
		CacheDir:     filepath.Join(tempDir, "data", "cache"),
		LogsDir:      filepath.Join(tempDir, "logs"),
	}

	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{
		paths.DataDir, paths.DownloadsDir, paths.ReportsDir,
		paths.ForecastsDir, paths.CacheDir, paths.LogsDir,
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "directory %s should exist", dir)
		assert.True(t, info.IsDir())
	}
}

func TestFileExists(t *testing.T) {
	tempDir := t.TempDir()
	existing := filepath.Join(tempDir, "present.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	assert.True(t, FileExists(existing))
	assert.False(t, FileExists(filepath.Join(tempDir, "absent.txt")))
}
