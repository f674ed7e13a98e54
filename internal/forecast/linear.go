package forecast

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LinearTrendModel fits an ordinary least squares line to the ordinal day
// encoding of the observation dates
type LinearTrendModel struct{}

// Kind identifies the model family
func (LinearTrendModel) Kind() ModelKind {
	return ModelLinear
}

// Fit estimates slope and intercept from the training series
func (LinearTrendModel) Fit(train TimeSeries) (FittedModel, error) {
	if train.Len() < MinTrainPoints {
		return nil, &InsufficientDataError{Points: train.Len()}
	}

	xs := encodeDates(train.Dates())
	intercept, slope := stat.LinearRegression(xs, train.Prices(), nil, false)
	if !finite(intercept) || !finite(slope) {
		return nil, &ModelFitError{
			Model: ModelLinear,
			Stage: "fit",
			Err:   fmt.Errorf("degenerate least squares fit"),
		}
	}

	return &fittedLinear{intercept: intercept, slope: slope}, nil
}

type fittedLinear struct {
	intercept float64
	slope     float64
}

// Predict extrapolates the fitted line to the target dates
func (m *fittedLinear) Predict(dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = m.intercept + m.slope*ordinalDay(d)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
