// Package forecast implements per-district price index backtesting,
// projection, and model selection.
//
// Every district's monthly index history is evaluated against three model
// families, each refit from scratch wherever it is used:
//
//  1. Seasonal: linear trend plus additive month-of-year effects, with a
//     residual uncertainty band around the projection
//  2. Linear: ordinary least squares trend on an ordinal day encoding
//  3. Ensemble: bagged depth-bounded regression trees with a fixed seed
//
// Model quality is measured by walk-forward validation: the most recent
// history is divided into consecutive 12-month held-out slices, each model is
// refit on everything strictly before a slice and scored with the mean
// absolute percentage error against it, and the per-window errors are
// averaged. Histories too short for even one window receive a sentinel score
// instead of a fabricated one. The model with the lowest averaged error wins
// the district; exact ties fall back to the fixed precedence seasonal,
// linear, ensemble.
//
// # Architecture
//
//   - types.go: series, window, projection and report data structures
//   - errors.go: typed failures for short histories, bad windows and fits
//   - encode.go: ordinal day encoding shared by fit and predict
//   - model.go: the fit/predict contract and model construction
//   - seasonal.go, linear.go, ensemble.go: the three model families
//   - backtest.go: walk-forward window construction and MAPE scoring
//   - engine.go: full-history refits and forward projections
//   - analyzer.go: per-district pipeline and the concurrent batch runner
//   - report.go: portfolio assembly and ranking helpers
//
// # Usage Example
//
//	analyzer := NewDistrictAnalyzer(12, slog.Default())
//	results := analyzer.AnalyzePortfolio(ctx, series, 4, nil)
//	portfolio := BuildPortfolioReport(results, analyzer.Horizon())
//	portfolio.SortByBestReturn()
//	for _, report := range portfolio.Reports {
//	    fmt.Printf("%s: %s model, %.2f%% expected return\n",
//	        report.District, report.BestModel, report.BestReturn())
//	}
//
// Failed districts never abort a batch. Each DistrictResult carries either a
// report and bundle or the typed error that excluded the district, and the
// result order is fixed by district id regardless of worker count.
package forecast
