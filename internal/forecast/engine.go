package forecast

import (
	"context"
	"fmt"
	"log/slog"
)

// ForecastEngine refits every model family on a district's complete history
// and produces forward projections. Backtest scores never influence the
// refit; every model projects from all available data.
type ForecastEngine struct {
	logger *slog.Logger
}

// NewForecastEngine creates an engine with the given logger
func NewForecastEngine(logger *slog.Logger) *ForecastEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastEngine{logger: logger}
}

// Forecast projects months future values per model, starting the month
// immediately after the last historical observation. A refit failure on the
// full history is fatal for the district, so any model error aborts the call.
func (e *ForecastEngine) Forecast(ctx context.Context, series TimeSeries, months int) (map[ModelKind]Projection, error) {
	if months < 1 {
		return nil, fmt.Errorf("forecast horizon must be at least one month, got %d", months)
	}
	if series.Len() == 0 {
		return nil, &InsufficientDataError{Points: 0}
	}

	dates := futureDates(series.LastDate(), months)
	projections := make(map[ModelKind]Projection, len(ModelKinds()))

	for _, kind := range ModelKinds() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("forecast cancelled: %w", ctx.Err())
		default:
		}

		fitted, err := NewModel(kind).Fit(series)
		if err != nil {
			return nil, fmt.Errorf("refit %s model on full history: %w", kind, err)
		}

		predicted := fitted.Predict(dates)
		points := make([]Point, len(dates))
		for i := range dates {
			points[i] = Point{Date: dates[i], Price: predicted[i]}
		}

		proj := Projection{Model: kind, Points: points}
		if banded, ok := fitted.(BandedModel); ok {
			upper, lower := banded.PredictBand(dates)
			proj.Band = &Band{Upper: upper, Lower: lower}
		}
		projections[kind] = proj

		e.logger.DebugContext(ctx, "projection complete",
			slog.String("district", series.District),
			slog.String("model", kind.String()),
			slog.Int("months", months),
			slog.Float64("last_price", proj.LastPrice()))
	}

	return projections, nil
}
