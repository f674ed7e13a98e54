package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DistrictAnalyzer runs the full evaluation pipeline for districts: history
// checks, walk-forward backtesting, full-history refits, and the final model
// selection.
type DistrictAnalyzer struct {
	backtester *Backtester
	engine     *ForecastEngine
	horizon    int
	logger     *slog.Logger
}

// NewDistrictAnalyzer creates an analyzer projecting horizonMonths ahead.
// The horizon is assumed validated by the caller.
func NewDistrictAnalyzer(horizonMonths int, logger *slog.Logger) *DistrictAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DistrictAnalyzer{
		backtester: NewBacktester(logger),
		engine:     NewForecastEngine(logger),
		horizon:    horizonMonths,
		logger:     logger,
	}
}

// Horizon returns the forecast horizon in months
func (a *DistrictAnalyzer) Horizon() int {
	return a.horizon
}

// AnalyzeDistrict evaluates a single district: validates the series, scores
// every model with walk-forward backtesting, refits on the complete history,
// and derives per-model returns plus the selected model.
func (a *DistrictAnalyzer) AnalyzeDistrict(ctx context.Context, series TimeSeries) (*DistrictReport, *ForecastBundle, error) {
	start := time.Now()

	if series.Len() < MinHistoryMonths {
		return nil, nil, &InsufficientHistoryError{District: series.District, Months: series.Len()}
	}
	if err := series.Validate(); err != nil {
		return nil, nil, &DistrictAnalysisError{District: series.District, Err: err}
	}

	scores, err := a.backtester.Run(ctx, series)
	if err != nil {
		return nil, nil, &DistrictAnalysisError{District: series.District, Err: err}
	}

	projections, err := a.engine.Forecast(ctx, series, a.horizon)
	if err != nil {
		return nil, nil, &DistrictAnalysisError{District: series.District, Err: err}
	}

	current := series.CurrentPrice()
	returns := make(map[ModelKind]float64, len(projections))
	for kind, proj := range projections {
		returns[kind] = (proj.LastPrice() - current) / current * 100
	}

	report := &DistrictReport{
		District:     series.District,
		CurrentPrice: current,
		Returns:      returns,
		Errors:       scores,
		BestModel:    scores.Best(),
	}
	bundle := &ForecastBundle{
		History:     series,
		Projections: projections,
		Errors:      scores,
	}

	a.logger.InfoContext(ctx, "district analyzed",
		slog.String("district", series.District),
		slog.String("best_model", report.BestModel.String()),
		slog.Float64("best_error_pct", scores[report.BestModel]),
		slog.Float64("best_return_pct", report.BestReturn()),
		slog.Duration("duration", time.Since(start)))

	return report, bundle, nil
}

// AnalyzePortfolio evaluates every district with up to workers districts in
// flight at once. One result is returned per input series, ordered by
// district id, and a failure in one district never aborts the others. The
// output is identical for any worker count.
func (a *DistrictAnalyzer) AnalyzePortfolio(ctx context.Context, series []TimeSeries, workers int, progress ProgressFunc) []DistrictResult {
	start := time.Now()
	if workers < 1 {
		workers = 1
	}

	ordered := make([]TimeSeries, len(series))
	copy(ordered, series)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].District < ordered[j].District
	})

	a.logger.InfoContext(ctx, "starting portfolio analysis",
		slog.Int("districts", len(ordered)),
		slog.Int("workers", workers),
		slog.Int("horizon_months", a.horizon))

	results := make([]DistrictResult, len(ordered))
	total := len(ordered)

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range ordered {
		g.Go(func() error {
			s := ordered[i]
			districtStart := time.Now()
			report, bundle, err := a.AnalyzeDistrict(gctx, s)
			elapsed := time.Since(districtStart)
			if err != nil {
				a.logDistrictFailure(gctx, s.District, err)
				results[i] = DistrictResult{District: s.District, Elapsed: elapsed, Err: err}
			} else {
				results[i] = DistrictResult{District: s.District, Report: report, Bundle: bundle, Elapsed: elapsed}
			}

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			if progress != nil {
				progress(done, total, s.District)
			}
			return nil
		})
	}
	// Workers always return nil; per-district failures live in results[i].Err
	_ = g.Wait()

	ok := 0
	for _, r := range results {
		if r.Ok() {
			ok++
		}
	}
	a.logger.InfoContext(ctx, "portfolio analysis complete",
		slog.Int("districts", total),
		slog.Int("analyzed", ok),
		slog.Int("skipped", total-ok),
		slog.Duration("duration", time.Since(start)))

	return results
}

func (a *DistrictAnalyzer) logDistrictFailure(ctx context.Context, district string, err error) {
	var insufficient *InsufficientHistoryError
	if errors.As(err, &insufficient) {
		a.logger.WarnContext(ctx, "skipping district with short history",
			slog.String("district", district),
			slog.Int("months", insufficient.Months))
		return
	}
	a.logger.WarnContext(ctx, "district analysis failed",
		slog.String("district", district),
		slog.String("error", err.Error()))
}
