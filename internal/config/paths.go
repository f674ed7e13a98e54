package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Paths contains all the application paths.
// This is the single source of truth for ALL file paths in the application.
type Paths struct {
	ExecutableDir string
	WebDir        string
	StaticDir     string
	DataDir       string
	DownloadsDir  string
	ReportsDir    string
	ForecastsDir  string
	CacheDir      string
	LogsDir       string

	// Well-known data files
	SeriesCSV string
}

// GetPaths returns the application paths relative to the executable location.
// All paths are ALWAYS relative to the executable directory, never the
// current working directory.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	exeDir := filepath.Dir(exe)

	// Directory layout:
	//   data/
	//     downloads/   (index workbooks from the fetcher)
	//     reports/     (generated reports)
	//       forecasts/ (per-district forecast dumps)
	//     cache/       (temporary files)
	//   logs/
	//   web/
	dataDir := filepath.Join(exeDir, "data")
	reportsDir := filepath.Join(dataDir, "reports")

	paths := &Paths{
		ExecutableDir: exeDir,
		DataDir:       dataDir,
		WebDir:        filepath.Join(exeDir, "web"),
		StaticDir:     filepath.Join(exeDir, "web", "static"),
		DownloadsDir:  filepath.Join(dataDir, "downloads"),
		ReportsDir:    reportsDir,
		ForecastsDir:  filepath.Join(reportsDir, "forecasts"),
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(exeDir, "logs"),

		SeriesCSV: filepath.Join(reportsDir, "district_series.csv"),
	}

	return paths, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{
		p.DataDir,
		p.DownloadsDir,
		p.ReportsDir,
		p.ForecastsDir,
		p.CacheDir,
		p.LogsDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// GetRelativePath returns a path relative to the executable directory
func (p *Paths) GetRelativePath(subpath string) string {
	return filepath.Join(p.ExecutableDir, subpath)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetDownloadPath returns the path for a downloaded file
func (p *Paths) GetDownloadPath(filename string) string {
	return filepath.Join(p.DownloadsDir, filename)
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetForecastPath returns the path for a per-district forecast file
func (p *Paths) GetForecastPath(filename string) string {
	return filepath.Join(p.ForecastsDir, filename)
}

// GetCachePath returns the path for a cache file
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetWebFilePath returns the path to a web file
func (p *Paths) GetWebFilePath(filename string) string {
	return filepath.Join(p.WebDir, filename)
}

// GetSeriesCSVPath returns the path for the normalized district series CSV
func (p *Paths) GetSeriesCSVPath() string {
	return p.SeriesCSV
}

// GetWorkbookPathForMonth returns the expected path of a downloaded index
// workbook for a publication month, e.g. "2024-06 Housing Price Index.xlsx".
func (p *Paths) GetWorkbookPathForMonth(month time.Time) string {
	filename := fmt.Sprintf("%s Housing Price Index.xlsx", month.Format("2006-01"))
	return filepath.Join(p.DownloadsDir, filename)
}

// GetPortfolioReportPath returns the timestamped path for a portfolio report
func (p *Paths) GetPortfolioReportPath(date time.Time, ext string) string {
	filename := fmt.Sprintf("portfolio_report_%s.%s", date.Format("20060102"), ext)
	return filepath.Join(p.ReportsDir, filename)
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	slog.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("executable", p.ExecutableDir),
			slog.String("data", p.DataDir),
			slog.String("downloads", p.DownloadsDir),
			slog.String("reports", p.ReportsDir),
			slog.String("forecasts", p.ForecastsDir),
			slog.String("cache", p.CacheDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("data_files",
			slog.String("series_csv", p.SeriesCSV),
		))
}
