package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hpicli/internal/config"
	"hpicli/internal/dataset"
	"hpicli/internal/exporter"
	"hpicli/internal/forecast"
	"hpicli/internal/infrastructure"
	ws "hpicli/internal/websocket"
)

// AnalysisService runs portfolio analyses and serves the latest report
type AnalysisService struct {
	config  *config.Config
	paths   *config.Paths
	hub     *ws.Hub
	metrics *infrastructure.AnalysisMetrics
	logger  *slog.Logger

	mu      sync.RWMutex
	running bool
	lastRun *RunSummary
	latest  *forecast.PortfolioReport
}

// AnalysisRequest describes one analysis run. Zero values fall back to the
// configured defaults.
type AnalysisRequest struct {
	HorizonMonths int
	Workers       int
	SourcePath    string
}

// RunSummary describes a completed analysis run
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Horizon    int       `json:"horizon_months"`
	Workers    int       `json:"workers"`
	Districts  int       `json:"districts"`
	Analyzed   int       `json:"analyzed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// RunStatus reports whether a run is in flight and the last completed run
type RunStatus struct {
	Running bool        `json:"running"`
	LastRun *RunSummary `json:"last_run,omitempty"`
}

// DistrictInfo summarizes one district's available history
type DistrictInfo struct {
	District     string  `json:"district"`
	Months       int     `json:"months"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	CurrentIndex float64 `json:"current_index"`
}

// NewAnalysisService creates a new analysis service. The hub and metrics may
// be nil; progress broadcasting and instrument recording are then skipped.
func NewAnalysisService(cfg *config.Config, paths *config.Paths, hub *ws.Hub, metrics *infrastructure.AnalysisMetrics, logger *slog.Logger) *AnalysisService {
	// Ensure we have a logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("AnalysisService initialized",
		slog.Int("default_horizon_months", cfg.Analysis.HorizonMonths),
		slog.Int("default_workers", cfg.Analysis.Workers),
		slog.String("data_dir", paths.DataDir))

	return &AnalysisService{
		config:  cfg,
		paths:   paths,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

// RunAnalysis loads the district series, runs the full backtest and forecast
// pipeline, and publishes the resulting report as the latest. Only one run
// may be in flight at a time.
func (s *AnalysisService) RunAnalysis(ctx context.Context, req AnalysisRequest) (*RunSummary, error) {
	// Apply configured defaults
	if req.HorizonMonths == 0 {
		req.HorizonMonths = s.config.Analysis.HorizonMonths
	}
	if req.Workers == 0 {
		req.Workers = s.config.Analysis.Workers
	}

	if req.HorizonMonths < config.MinHorizonMonths || req.HorizonMonths > config.MaxHorizonMonths {
		return nil, fmt.Errorf("%w: %d months not in [%d, %d]",
			ErrInvalidHorizon, req.HorizonMonths, config.MinHorizonMonths, config.MaxHorizonMonths)
	}
	if req.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, req.Workers)
	}

	// Claim the single run slot
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAnalysisRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runID := uuid.New().String()
	logger := s.logger.With(slog.String("run_id", runID))
	start := time.Now()

	if s.metrics != nil {
		s.metrics.ActiveAnalysisRuns.Add(ctx, 1)
		defer s.metrics.ActiveAnalysisRuns.Add(ctx, -1)
	}

	table, err := s.loadTable(ctx, req.SourcePath)
	if err != nil {
		logger.Error("RunAnalysis: failed to load dataset",
			slog.String("error", err.Error()))
		if s.hub != nil {
			s.hub.BroadcastError("dataset_load_failed", err.Error())
		}
		return nil, err
	}

	series := table.Series()
	if len(series) == 0 {
		if s.hub != nil {
			s.hub.BroadcastError("dataset_empty", "no district series found")
		}
		return nil, ErrNoDataSource
	}

	logger.Info("RunAnalysis: starting",
		slog.Int("districts", len(series)),
		slog.Int("horizon_months", req.HorizonMonths),
		slog.Int("workers", req.Workers))
	if s.hub != nil {
		s.hub.BroadcastStatus("analysis:started",
			fmt.Sprintf("analyzing %d districts over %d months", len(series), req.HorizonMonths))
	}

	analyzer := forecast.NewDistrictAnalyzer(req.HorizonMonths, logger)
	progress := func(done, total int, district string) {
		if s.hub != nil {
			s.hub.BroadcastProgress(runID, done, total, district)
		}
	}
	results := analyzer.AnalyzePortfolio(ctx, series, req.Workers, progress)

	if err := ctx.Err(); err != nil {
		logger.Warn("RunAnalysis: cancelled", slog.String("error", err.Error()))
		if s.hub != nil {
			s.hub.BroadcastError("analysis_cancelled", err.Error())
		}
		return nil, err
	}

	report := forecast.BuildPortfolioReport(results, req.HorizonMonths)
	report.SortByBestReturn()

	summary := &RunSummary{
		RunID:     runID,
		Horizon:   req.HorizonMonths,
		Workers:   req.Workers,
		Districts: len(series),
		StartedAt: start.UTC(),
	}
	for _, res := range results {
		bestModel := ""
		if res.Ok() {
			summary.Analyzed++
			bestModel = res.Report.BestModel.String()
		} else {
			var short *forecast.InsufficientHistoryError
			if errors.As(res.Err, &short) {
				summary.Skipped++
			} else {
				summary.Failed++
				var fitErr *forecast.ModelFitError
				if errors.As(res.Err, &fitErr) {
					infrastructure.RecordModelFitFailure(ctx, s.metrics, fitErr.Model.String(), fitErr.Stage)
				}
			}
		}
		infrastructure.RecordDistrictAnalysis(ctx, s.metrics, res.District, bestModel, res.Elapsed, res.Ok())
	}
	duration := time.Since(start)
	summary.DurationMS = duration.Milliseconds()

	infrastructure.RecordAnalysisRun(ctx, s.metrics, runID, req.HorizonMonths, duration,
		summary.Analyzed, summary.Skipped, summary.Failed)
	if s.metrics != nil && summary.Analyzed > 0 {
		s.metrics.ForecastsGeneratedTotal.Add(ctx, int64(summary.Analyzed*len(forecast.ModelKinds())))
	}

	// Publish the report
	s.mu.Lock()
	s.latest = report
	s.lastRun = summary
	s.mu.Unlock()

	logger.Info("RunAnalysis: completed",
		slog.Int("analyzed", summary.Analyzed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", duration))
	if s.hub != nil {
		s.hub.BroadcastStatus("analysis:completed",
			fmt.Sprintf("analyzed %d of %d districts", summary.Analyzed, summary.Districts))
	}

	return summary, nil
}

// Status returns whether a run is in flight and the last completed summary
func (s *AnalysisService) Status(ctx context.Context) RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := RunStatus{Running: s.running}
	if s.lastRun != nil {
		last := *s.lastRun
		status.LastRun = &last
	}
	return status
}

// RankedReport returns a copy of the latest report sorted by the requested
// criterion: "best" (selected-model return), "return" (the given model's
// return) or "index" (the given model's projected level)
func (s *AnalysisService) RankedReport(ctx context.Context, sortBy string, model forecast.ModelKind) (*forecast.PortfolioReport, error) {
	snapshot, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	switch sortBy {
	case "", "best":
		snapshot.SortByBestReturn()
	case "return":
		snapshot.SortByReturn(model)
	case "index":
		snapshot.SortByFutureIndex(model)
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidInput, sortBy)
	}

	return snapshot, nil
}

// DistrictBundle returns the full forecast artifact for one district
func (s *AnalysisService) DistrictBundle(ctx context.Context, district string) (*forecast.ForecastBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, ErrNoReport
	}
	bundle, ok := s.latest.Bundle(district)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDistrictNotFound, district)
	}
	return &bundle, nil
}

// Districts lists the districts available in the data source together with
// their history coverage
func (s *AnalysisService) Districts(ctx context.Context) ([]DistrictInfo, error) {
	table, err := s.loadTable(ctx, "")
	if err != nil {
		return nil, err
	}

	series := table.Series()
	infos := make([]DistrictInfo, 0, len(series))
	for _, ts := range series {
		if ts.Len() == 0 {
			continue
		}
		infos = append(infos, DistrictInfo{
			District:     ts.District,
			Months:       ts.Len(),
			From:         ts.Points[0].Date.Format("2006-01"),
			To:           ts.LastDate().Format("2006-01"),
			CurrentIndex: ts.CurrentPrice(),
		})
	}

	s.logger.Debug("Districts: listed", slog.Int("count", len(infos)))
	return infos, nil
}

// ExportLatest writes the latest report to the reports directory in the
// requested format and returns the written path
func (s *AnalysisService) ExportLatest(ctx context.Context, format string) (string, error) {
	snapshot, err := s.snapshot()
	if err != nil {
		return "", err
	}
	snapshot.SortByBestReturn()

	outputPath := s.paths.GetPortfolioReportPath(time.Now(), format)
	portfolio := exporter.NewPortfolioExporter(s.paths)

	switch format {
	case "csv":
		err = portfolio.ExportRankingCSV(snapshot, outputPath)
	case "xlsx":
		err = portfolio.ExportRankingXLSX(snapshot, outputPath)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to export report: %w", err)
	}

	s.logger.Info("ExportLatest: report written",
		slog.String("format", format),
		slog.String("path", outputPath))
	return outputPath, nil
}

// snapshot copies the latest report so callers can sort without racing
// concurrent readers. The bundle map is shared; it is never mutated after
// publication.
func (s *AnalysisService) snapshot() (*forecast.PortfolioReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, ErrNoReport
	}

	reports := make([]forecast.DistrictReport, len(s.latest.Reports))
	copy(reports, s.latest.Reports)
	skipped := make([]string, len(s.latest.Skipped))
	copy(skipped, s.latest.Skipped)

	return &forecast.PortfolioReport{
		GeneratedAt: s.latest.GeneratedAt,
		Horizon:     s.latest.Horizon,
		Reports:     reports,
		Skipped:     skipped,
		Bundles:     s.latest.Bundles,
	}, nil
}

// loadTable reads the district table from an explicit source path, the
// cached series CSV, or the most recent workbook in the downloads directory,
// in that order. Workbook loads refresh the CSV cache.
func (s *AnalysisService) loadTable(ctx context.Context, sourcePath string) (*dataset.Table, error) {
	if sourcePath != "" {
		return s.loadFrom(sourcePath)
	}

	seriesCSV := s.paths.GetSeriesCSVPath()
	if config.FileExists(seriesCSV) {
		s.logger.Debug("loadTable: using cached series CSV",
			slog.String("path", seriesCSV))
		return dataset.NewCSVLoader(s.logger).Load(seriesCSV)
	}

	discovery := dataset.NewDiscovery(s.paths.DataDir)
	workbook, err := discovery.LatestWorkbook(s.paths.DownloadsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDataSource, err.Error())
	}

	table, err := dataset.NewWorkbookLoader(s.logger).Load(workbook.Path)
	if err != nil {
		return nil, err
	}

	// Refresh the long-format cache so later loads skip the workbook parse
	if err := dataset.SaveCSV(table, seriesCSV); err != nil {
		s.logger.Warn("loadTable: failed to refresh series cache",
			slog.String("path", seriesCSV),
			slog.String("error", err.Error()))
	}

	return table, nil
}

// loadFrom picks the loader matching the source file extension
func (s *AnalysisService) loadFrom(sourcePath string) (*dataset.Table, error) {
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".xlsx", ".xls":
		return dataset.NewWorkbookLoader(s.logger).Load(sourcePath)
	case ".csv":
		return dataset.NewCSVLoader(s.logger).Load(sourcePath)
	default:
		return nil, fmt.Errorf("%w: unsupported source %s", ErrInvalidInput, sourcePath)
	}
}
