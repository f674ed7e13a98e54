package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hpicli/internal/config"
	"hpicli/internal/dataset"
	"hpicli/internal/exporter"
	"hpicli/internal/forecast"
	"hpicli/internal/infrastructure"
)

func main() {
	sourcePath := flag.String("in", "", "price index source, .csv or .xlsx (defaults to the cached series CSV, then the latest workbook in data/downloads)")
	horizon := flag.Int("horizon", 0, "forecast horizon in months (defaults to the configured analysis horizon)")
	workers := flag.Int("workers", 0, "concurrent district analyses (defaults to the configured worker count)")
	sortBy := flag.String("sort", "best", "ranking order: best, return, or index")
	modelName := flag.String("model", "", "model for -sort return|index: seasonal, linear, or ensemble")
	top := flag.Int("top", 10, "number of ranked districts to print")
	format := flag.String("format", "csv", "ranking export format: csv or xlsx")
	exportForecasts := flag.Bool("forecasts", false, "also export per-district and combined forecast CSVs")
	flag.Parse()

	// Validate flag combinations before any heavy work
	if *sortBy != "best" && *sortBy != "return" && *sortBy != "index" {
		slog.Error("Invalid sort order, must be one of: best, return, index", "sort", *sortBy)
		os.Exit(1)
	}
	model := forecast.ModelSeasonal
	if *modelName != "" {
		parsed, err := forecast.ParseModelKind(*modelName)
		if err != nil {
			slog.Error("Invalid model, must be one of: seasonal, linear, ensemble", "model", *modelName)
			os.Exit(1)
		}
		model = parsed
	}
	ext := strings.ToLower(*format)
	if ext != "csv" && ext != "xlsx" {
		slog.Error("Invalid export format, must be csv or xlsx", "format", *format)
		os.Exit(1)
	}

	// Initialize paths first to get default directories
	paths, err := config.GetPaths()
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
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
			Analysis: config.AnalysisConfig{
				HorizonMonths: 12,
				Workers:       4,
			},
			Logging: config.LoggingConfig{
				Level:       "info",
				Format:      "json",
				Output:      "both",
				FilePath:    paths.GetLogPath("analyzer.log"),
				Development: false,
			},
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	horizonMonths := *horizon
	if horizonMonths == 0 {
		horizonMonths = cfg.Analysis.HorizonMonths
	}
	if horizonMonths < config.MinHorizonMonths || horizonMonths > config.MaxHorizonMonths {
		logger.Error("Horizon out of range",
			slog.Int("horizon_months", horizonMonths),
			slog.Int("min", config.MinHorizonMonths),
			slog.Int("max", config.MaxHorizonMonths))
		slog.Error("Horizon out of range", "horizon_months", horizonMonths)
		os.Exit(1)
	}
	workerCount := *workers
	if workerCount <= 0 {
		workerCount = cfg.Analysis.Workers
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	logger.Info("Starting district price index analysis",
		slog.String("source", *sourcePath),
		slog.Int("horizon_months", horizonMonths),
		slog.Int("workers", workerCount),
		slog.String("executable_dir", paths.ExecutableDir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, resolvedSource, err := loadTable(logger, paths, *sourcePath)
	if err != nil {
		logger.Error("Failed to load price index data", slog.String("error", err.Error()))
		slog.Error("Failed to load price index data", "error", err)
		os.Exit(1)
	}

	series := table.Series()
	fmt.Printf("Loaded %d observations across %d districts from %s\n", table.Len(), len(series), resolvedSource)

	// Graceful exit when the source holds no districts
	if len(series) == 0 {
		logger.Warn("No districts found in price index source",
			slog.String("source", resolvedSource))
		fmt.Println("No districts to analyze")
		return
	}

	analyzer := forecast.NewDistrictAnalyzer(horizonMonths, logger)

	fmt.Printf("Analyzing %d districts (horizon %d months, %d workers)\n", len(series), horizonMonths, workerCount)
	start := time.Now()
	results := analyzer.AnalyzePortfolio(ctx, series, workerCount, func(done, total int, district string) {
		fmt.Printf("Analyzed district %d of %d: %s\n", done, total, district)
	})
	if ctx.Err() != nil {
		logger.Warn("Analysis interrupted", slog.String("reason", ctx.Err().Error()))
		fmt.Println("Analysis interrupted")
		os.Exit(1)
	}

	report := forecast.BuildPortfolioReport(results, horizonMonths)
	switch *sortBy {
	case "return":
		report.SortByReturn(model)
	case "index":
		report.SortByFutureIndex(model)
	default:
		report.SortByBestReturn()
	}

	analyzed, skipped, failed := countOutcomes(results)
	fmt.Printf("Analysis complete: %d analyzed, %d skipped, %d failed in %s\n",
		analyzed, skipped, failed, time.Since(start).Round(time.Millisecond))
	logger.Info("Analysis complete",
		slog.Int("analyzed", analyzed),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))

	printRanking(report, *sortBy, model, *top)

	if len(report.Reports) == 0 {
		logger.Warn("No districts produced a forecast, skipping export")
		fmt.Println("No report to export")
		return
	}

	outputPath := paths.GetPortfolioReportPath(time.Now(), ext)
	portfolio := exporter.NewPortfolioExporter(paths)
	switch ext {
	case "csv":
		err = portfolio.ExportRankingCSV(report, outputPath)
	case "xlsx":
		err = portfolio.ExportRankingXLSX(report, outputPath)
	}
	if err != nil {
		logger.Error("Failed to export ranking", slog.String("error", err.Error()))
		slog.Error("Failed to export ranking", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Ranking exported to %s\n", outputPath)
	logger.Info("Ranking exported", slog.String("path", outputPath))

	if *exportForecasts {
		forecasts := exporter.NewForecastExporter(paths)
		if err := forecasts.ExportDistrictForecasts(report, paths.ForecastsDir); err != nil {
			logger.Error("Failed to export district forecasts", slog.String("error", err.Error()))
			slog.Error("Failed to export district forecasts", "error", err)
			os.Exit(1)
		}
		combinedPath := filepath.Join(paths.ForecastsDir,
			fmt.Sprintf("combined_forecasts_%s.csv", time.Now().Format("20060102")))
		if err := forecasts.ExportCombinedForecasts(report, combinedPath); err != nil {
			logger.Error("Failed to export combined forecasts", slog.String("error", err.Error()))
			slog.Error("Failed to export combined forecasts", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Forecasts exported to %s\n", paths.ForecastsDir)
		logger.Info("Forecasts exported",
			slog.String("dir", paths.ForecastsDir),
			slog.String("combined", combinedPath))
	}

	fmt.Println("All districts processed")
}

// loadTable resolves the price index source the same way the web service
// does: an explicit path wins, then the cached series CSV, then the most
// recent workbook in the downloads directory (refreshing the cache).
// Returns the table and the path it was loaded from.
func loadTable(logger *slog.Logger, paths *config.Paths, sourcePath string) (*dataset.Table, string, error) {
	if sourcePath != "" {
		table, err := loadSourceFile(logger, sourcePath)
		return table, sourcePath, err
	}

	seriesCSV := paths.GetSeriesCSVPath()
	if config.FileExists(seriesCSV) {
		table, err := dataset.NewCSVLoader(logger).Load(seriesCSV)
		return table, seriesCSV, err
	}

	discovery := dataset.NewDiscovery(paths.DataDir)
	workbook, err := discovery.LatestWorkbook(paths.DownloadsDir)
	if err != nil {
		return nil, "", fmt.Errorf("no price index data found: %s", err.Error())
	}

	table, err := dataset.NewWorkbookLoader(logger).Load(workbook.Path)
	if err != nil {
		return nil, "", err
	}
	if err := dataset.SaveCSV(table, seriesCSV); err != nil {
		logger.Warn("Failed to refresh series CSV cache",
			slog.String("path", seriesCSV),
			slog.String("error", err.Error()))
	}
	return table, workbook.Path, nil
}

// loadSourceFile picks the loader matching the source file extension
func loadSourceFile(logger *slog.Logger, sourcePath string) (*dataset.Table, error) {
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".csv":
		return dataset.NewCSVLoader(logger).Load(sourcePath)
	case ".xlsx":
		return dataset.NewWorkbookLoader(logger).Load(sourcePath)
	default:
		return nil, fmt.Errorf("unsupported source %q: expected a .csv or .xlsx file", sourcePath)
	}
}

// countOutcomes splits batch results into analyzed districts, districts
// skipped for insufficient history, and hard failures
func countOutcomes(results []forecast.DistrictResult) (analyzed, skipped, failed int) {
	for _, res := range results {
		switch {
		case res.Ok():
			analyzed++
		default:
			var short *forecast.InsufficientHistoryError
			if errors.As(res.Err, &short) {
				skipped++
			} else {
				failed++
			}
		}
	}
	return analyzed, skipped, failed
}

// printRanking writes the top ranked districts to stdout as a fixed-width
// table, followed by the districts that could not be analyzed
func printRanking(report *forecast.PortfolioReport, sortBy string, model forecast.ModelKind, top int) {
	if len(report.Reports) == 0 {
		return
	}
	if top > len(report.Reports) {
		top = len(report.Reports)
	}

	switch sortBy {
	case "return":
		fmt.Printf("\n=== TOP %d DISTRICTS BY %s MODEL RETURN (%d MONTH HORIZON) ===\n",
			top, strings.ToUpper(model.String()), report.Horizon)
	case "index":
		fmt.Printf("\n=== TOP %d DISTRICTS BY %s MODEL PROJECTED INDEX (%d MONTH HORIZON) ===\n",
			top, strings.ToUpper(model.String()), report.Horizon)
	default:
		fmt.Printf("\n=== TOP %d DISTRICTS BY EXPECTED RETURN (%d MONTH HORIZON) ===\n",
			top, report.Horizon)
	}

	fmt.Println("Rank | District             | Current | Best Model | Return % | MAPE %")
	fmt.Println("-----|----------------------|---------|------------|----------|-------")
	for i := 0; i < top; i++ {
		r := report.Reports[i]
		fmt.Printf("%4d | %-20s | %7.2f | %-10s | %+8.2f | %6.2f\n",
			i+1, r.District, r.CurrentPrice, r.BestModel.String(), r.BestReturn(), r.Errors[r.BestModel])
	}

	if len(report.Skipped) > 0 {
		fmt.Printf("\nSkipped (no usable forecast): %s\n", strings.Join(report.Skipped, ", "))
	}
}
