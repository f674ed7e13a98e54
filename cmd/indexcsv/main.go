package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"hpicli/internal/config"
	"hpicli/internal/dataset"
	"hpicli/internal/infrastructure"
)

// regex for filenames like "2025-06 Housing Price Index.xlsx"
var workbookRe = regexp.MustCompile(`^(\d{4})-(\d{2}) Housing Price Index\.xlsx$`)

func main() {
	mode := flag.String("mode", "initial", "initial | accumulative")
	dir := flag.String("dir", "", "directory containing index workbooks (defaults to data/downloads relative to executable)")
	out := flag.String("out", "", "output csv file path (defaults to data/reports/district_series.csv)")
	flag.Parse()

	// Initialize paths first to get default directories
	paths, err := config.GetPaths()
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}

	// Use centralized locations as defaults if not specified
	if *dir == "" {
		*dir = paths.DownloadsDir
	}
	if *out == "" {
		*out = paths.GetSeriesCSVPath()
	}

	// Ensure all required directories exist
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = &config.Config{
			Logging: config.LoggingConfig{
				Level:       "info",
				Format:      "json",
				Output:      "both",
				FilePath:    paths.GetLogPath("indexcsv.log"),
				Development: false,
			},
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Starting series extraction",
		slog.String("mode", *mode),
		slog.String("input_dir", *dir),
		slog.String("output_file", *out),
		slog.String("executable_dir", paths.ExecutableDir))

	outDir := filepath.Dir(*out)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		logger.Error("Cannot create output directory",
			slog.String("path", outDir),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Accumulative mode keeps the existing series and only ingests
	// workbooks published after its last observed month.
	table := &dataset.Table{}
	var lastMonth time.Time
	if *mode == "accumulative" {
		existing, err := dataset.NewCSVLoader(logger).Load(*out)
		if err != nil {
			logger.Warn("No usable existing CSV found, switching to initial mode",
				slog.String("path", *out),
				slog.String("error", err.Error()))
			*mode = "initial"
		} else {
			table = existing
			lastMonth = latestMonth(existing)
			logger.Info("Existing series loaded",
				slog.Int("observations", existing.Len()),
				slog.String("last_month", lastMonth.Format("2006-01")))
		}
	}

	files, err := discoverWorkbooks(*dir, lastMonth)
	if err != nil {
		logger.Error("Failed to read directory",
			slog.String("dir", *dir),
			slog.String("error", err.Error()))
		slog.Error("Failed to read directory", "dir", *dir, "error", err)
		os.Exit(1)
	}

	logger.Info("Index workbooks found", slog.Int("count", len(files)))
	fmt.Printf("Found %d index workbooks\n", len(files))

	if len(files) == 0 {
		logger.Info("No new workbooks to process")

		// Initial mode still leaves a valid header-only CSV behind
		if *mode == "initial" {
			if err := dataset.SaveCSV(table, *out); err != nil {
				logger.Error("Failed to create empty series CSV", slog.String("error", err.Error()))
				os.Exit(1)
			}
			logger.Info("Created empty series CSV with header", slog.String("path", *out))
		}

		fmt.Println("Series extraction complete: 0 workbooks")
		return
	}

	loader := dataset.NewWorkbookLoader(logger)
	processedCount := 0
	for i, fi := range files {
		name := filepath.Base(fi.path)
		logger.Info("Processing workbook",
			slog.Int("current", i+1),
			slog.Int("total", len(files)),
			slog.String("filename", name))
		fmt.Printf("Processing workbook %d of %d: %s\n", i+1, len(files), name)

		loaded, err := loader.Load(fi.path)
		if err != nil {
			logger.Error("Error processing workbook",
				slog.String("filename", name),
				slog.String("error", err.Error()))
			slog.Warn("Error processing workbook", "filename", name, "error", err)
			continue
		}

		table = mergeTables(table, loaded)
		processedCount++

		logger.Info("Workbook merged",
			slog.String("month", fi.month.Format("2006-01")),
			slog.Int("observations", loaded.Len()),
			slog.Int("total_observations", table.Len()))
	}

	if processedCount == 0 {
		logger.Warn("All discovered workbooks failed to load, leaving series untouched")
		fmt.Println("Series extraction complete: 0 workbooks")
		os.Exit(1)
	}

	if err := dataset.SaveCSV(table, *out); err != nil {
		logger.Error("Failed to write series CSV",
			slog.String("path", *out),
			slog.String("error", err.Error()))
		slog.Error("Failed to write series CSV", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("Series extraction completed",
		slog.Int("processed_workbooks", processedCount),
		slog.Int("observations", table.Len()),
		slog.Int("districts", len(table.Districts())),
		slog.String("output_path", *out))
	fmt.Printf("Series updated: %d observations across %d districts\n",
		table.Len(), len(table.Districts()))
	fmt.Printf("Series extraction complete: %d workbooks\n", processedCount)
}

type workbookFile struct {
	path  string
	month time.Time
}

// discoverWorkbooks lists index workbooks in dir, ordered by publication
// month. Workbooks up to and including lastMonth are skipped; a zero
// lastMonth keeps everything.
func discoverWorkbooks(dir string, lastMonth time.Time) ([]workbookFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []workbookFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := workbookRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		month, err := time.Parse("2006-01", m[1]+"-"+m[2])
		if err != nil {
			continue
		}
		if !lastMonth.IsZero() && !month.After(lastMonth) {
			continue // already covered by the existing series
		}
		files = append(files, workbookFile{path: filepath.Join(dir, e.Name()), month: month})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].month.Before(files[j].month) })
	return files, nil
}

// latestMonth returns the most recent observation date in the table
func latestMonth(table *dataset.Table) time.Time {
	var last time.Time
	for _, r := range table.Rows {
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return last
}

// mergeTables overlays next onto base. Rows from next win on overlapping
// month and district, so revised figures from a later workbook replace
// what an earlier one reported.
func mergeTables(base, next *dataset.Table) *dataset.Table {
	type key struct {
		date     time.Time
		district string
	}

	merged := make(map[key]float64, base.Len()+next.Len())
	for _, r := range base.Rows {
		merged[key{r.Date, r.District}] = r.Price
	}
	for _, r := range next.Rows {
		merged[key{r.Date, r.District}] = r.Price
	}

	rows := make([]dataset.Row, 0, len(merged))
	for k, price := range merged {
		rows = append(rows, dataset.Row{Date: k.date, District: k.district, Price: price})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].District != rows[j].District {
			return rows[i].District < rows[j].District
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	return &dataset.Table{Rows: rows}
}
