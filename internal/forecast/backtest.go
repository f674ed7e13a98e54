package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Backtester measures each model family's out-of-sample accuracy using
// walk-forward validation: a sequence of train/test splits where every test
// slice is a 12-month block of held-out history and the train slice is
// everything strictly before it.
type Backtester struct {
	logger *slog.Logger
}

// NewBacktester creates a backtester with the given logger
func NewBacktester(logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{logger: logger}
}

// Depth returns the number of walk-forward windows for n months of history.
// Long histories earn the full depth, medium histories a single window, and
// anything at or below the single-window threshold none at all.
func Depth(n int) int {
	switch {
	case n > fullDepthHistoryMonths:
		return maxBacktestWindows
	case n > singleWindowHistoryMonths:
		return 1
	default:
		return 0
	}
}

// Run scores every model kind against one district's history. Each model is
// refit from scratch inside every window. A model that fails on a window is
// charged PenaltyError for that window; a model with no valid windows at all
// is assigned SentinelError. Run never fails per model, only on cancellation.
func (b *Backtester) Run(ctx context.Context, series TimeSeries) (ErrorScores, error) {
	n := series.Len()
	depth := Depth(n)
	scores := make(ErrorScores, len(ModelKinds()))

	if depth == 0 {
		b.logger.DebugContext(ctx, "history too short for walk-forward validation",
			slog.String("district", series.District),
			slog.Int("months", n))
		for _, kind := range ModelKinds() {
			scores[kind] = SentinelError
		}
		return scores, nil
	}

	perModel := make(map[ModelKind][]float64, len(ModelKinds()))
	for k := depth; k >= 1; k-- {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backtest cancelled: %w", ctx.Err())
		default:
		}

		window, err := seriesWindow(series, k)
		if err != nil {
			b.logger.DebugContext(ctx, "skipping unformable backtest window",
				slog.String("district", series.District),
				slog.Int("window", k),
				slog.String("error", err.Error()))
			continue
		}

		for _, kind := range ModelKinds() {
			mape, err := windowError(window, kind)
			if err != nil {
				b.logger.WarnContext(ctx, "model failed on backtest window, charging penalty",
					slog.String("district", series.District),
					slog.String("model", kind.String()),
					slog.Int("window", k),
					slog.String("error", err.Error()))
				perModel[kind] = append(perModel[kind], PenaltyError)
				continue
			}
			perModel[kind] = append(perModel[kind], mape)
		}
	}

	for _, kind := range ModelKinds() {
		vals := perModel[kind]
		if len(vals) == 0 {
			scores[kind] = SentinelError
			continue
		}
		scores[kind] = stat.Mean(vals, nil)
	}
	return scores, nil
}

// seriesWindow builds the k-th walk-forward window counting back from the end
// of the history: the test slice is the 12 months ending 12*(k-1) months
// before the last observation, the train slice is everything before it
func seriesWindow(series TimeSeries, k int) (Window, error) {
	n := series.Len()
	testEnd := n - TestWindowMonths*(k-1)
	testStart := testEnd - TestWindowMonths
	if testStart < 1 {
		return Window{}, &InsufficientWindowError{
			Window: k,
			Train:  max(testStart, 0),
			Test:   min(TestWindowMonths, max(testEnd, 0)),
		}
	}
	return Window{
		Train: series.Slice(0, testStart),
		Test:  series.Slice(testStart, testEnd),
	}, nil
}

// windowError refits one model on the window's train slice and scores its
// predictions against the held-out test slice
func windowError(w Window, kind ModelKind) (float64, error) {
	fitted, err := NewModel(kind).Fit(w.Train)
	if err != nil {
		return 0, fmt.Errorf("fit: %w", err)
	}
	predicted := fitted.Predict(w.Test.Dates())
	return MAPE(w.Test.Prices(), predicted)
}

// MAPE returns the mean absolute percentage error between actual and
// predicted values, as a percent
func MAPE(actual, predicted []float64) (float64, error) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0, fmt.Errorf("mape: mismatched series lengths %d and %d", len(actual), len(predicted))
	}
	sum := 0.0
	for i := range actual {
		if actual[i] == 0 {
			return 0, fmt.Errorf("mape: zero actual value at index %d", i)
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
	}
	pct := sum / float64(len(actual)) * 100
	if !finite(pct) {
		return 0, fmt.Errorf("mape: non-finite result")
	}
	return pct, nil
}
