package forecast

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// seasonalTerms is the design matrix width: intercept, trend, and eleven
// month-of-year dummies with January as the baseline
const seasonalTerms = 13

// SeasonalTrendModel decomposes a series into a linear trend and additive
// month-of-year effects, estimated jointly by least squares. The fitted model
// carries a residual sigma so projections come with an uncertainty band.
type SeasonalTrendModel struct{}

// Kind identifies the model family
func (SeasonalTrendModel) Kind() ModelKind {
	return ModelSeasonal
}

// Fit estimates the trend and seasonal coefficients from the training series
func (SeasonalTrendModel) Fit(train TimeSeries) (FittedModel, error) {
	if train.Len() < MinTrainPoints {
		return nil, &InsufficientDataError{Points: train.Len()}
	}

	n := train.Len()
	design := mat.NewDense(n, seasonalTerms, nil)
	for i, p := range train.Points {
		design.Set(i, 0, 1)
		design.Set(i, 1, ordinalDay(p.Date))
		if month := int(p.Date.Month()); month >= 2 {
			design.Set(i, month, 1)
		}
	}
	y := mat.NewVecDense(n, train.Prices())

	var beta mat.VecDense
	if err := beta.SolveVec(design, y); err != nil {
		// A Condition error still carries a usable solution; anything else
		// means the decomposition failed outright.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, &ModelFitError{Model: ModelSeasonal, Stage: "fit", Err: err}
		}
	}

	coef := make([]float64, seasonalTerms)
	for i := range coef {
		v := beta.AtVec(i)
		if !finite(v) {
			return nil, &ModelFitError{
				Model: ModelSeasonal,
				Stage: "fit",
				Err:   fmt.Errorf("non-finite coefficient at term %d", i),
			}
		}
		coef[i] = v
	}

	fitted := &fittedSeasonal{coef: coef}
	residuals := make([]float64, n)
	for i, p := range train.Points {
		residuals[i] = p.Price - fitted.at(p.Date)
	}
	fitted.sigma = stat.StdDev(residuals, nil)
	return fitted, nil
}

type fittedSeasonal struct {
	coef  []float64 // intercept, trend, February..December adjustments
	sigma float64
}

func (m *fittedSeasonal) at(d time.Time) float64 {
	v := m.coef[0] + m.coef[1]*ordinalDay(d)
	if month := int(d.Month()); month >= 2 {
		v += m.coef[month]
	}
	return v
}

// Predict returns the trend plus seasonal value for each target date
func (m *fittedSeasonal) Predict(dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = m.at(d)
	}
	return out
}

// PredictBand returns the point forecast shifted up and down by bandSigma
// residual standard deviations
func (m *fittedSeasonal) PredictBand(dates []time.Time) (upper, lower []float64) {
	upper = make([]float64, len(dates))
	lower = make([]float64, len(dates))
	for i, d := range dates {
		v := m.at(d)
		upper[i] = v + bandSigma*m.sigma
		lower[i] = v - bandSigma*m.sigma
	}
	return upper, lower
}
