package forecast

import (
	"fmt"
	"time"
)

// ModelKind identifies one of the three forecasting model families
type ModelKind int

const (
	// ModelSeasonal is the trend plus month-of-year seasonality model
	ModelSeasonal ModelKind = iota
	// ModelLinear is the ordinary least squares trend model
	ModelLinear
	// ModelEnsemble is the bagged regression tree model
	ModelEnsemble
)

// ModelKinds returns the closed set of model kinds in tie-break precedence
// order: seasonal, then linear, then ensemble
func ModelKinds() []ModelKind {
	return []ModelKind{ModelSeasonal, ModelLinear, ModelEnsemble}
}

// String returns the string representation of the model kind
func (m ModelKind) String() string {
	switch m {
	case ModelSeasonal:
		return "seasonal"
	case ModelLinear:
		return "linear"
	case ModelEnsemble:
		return "ensemble"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so model kinds appear by name
// in JSON bodies and as JSON map keys
func (m ModelKind) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *ModelKind) UnmarshalText(text []byte) error {
	kind, err := ParseModelKind(string(text))
	if err != nil {
		return err
	}
	*m = kind
	return nil
}

// ParseModelKind parses a model kind from its string name
func ParseModelKind(s string) (ModelKind, error) {
	switch s {
	case "seasonal":
		return ModelSeasonal, nil
	case "linear":
		return ModelLinear, nil
	case "ensemble":
		return ModelEnsemble, nil
	default:
		return 0, fmt.Errorf("unknown model kind %q", s)
	}
}

// Point is a single monthly observation of a district's price index
type Point struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// TimeSeries is one district's ordered monthly price history. It is built
// once from the cleaned dataset and treated as immutable during analysis.
type TimeSeries struct {
	District string  `json:"district"`
	Points   []Point `json:"points"`
}

// Len returns the number of observations
func (ts TimeSeries) Len() int {
	return len(ts.Points)
}

// Dates returns the observation dates in order
func (ts TimeSeries) Dates() []time.Time {
	dates := make([]time.Time, len(ts.Points))
	for i, p := range ts.Points {
		dates[i] = p.Date
	}
	return dates
}

// Prices returns the observed prices in order
func (ts TimeSeries) Prices() []float64 {
	prices := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		prices[i] = p.Price
	}
	return prices
}

// LastDate returns the date of the most recent observation
func (ts TimeSeries) LastDate() time.Time {
	if len(ts.Points) == 0 {
		return time.Time{}
	}
	return ts.Points[len(ts.Points)-1].Date
}

// CurrentPrice returns the most recent observed price
func (ts TimeSeries) CurrentPrice() float64 {
	if len(ts.Points) == 0 {
		return 0
	}
	return ts.Points[len(ts.Points)-1].Price
}

// Slice returns the sub-series covering points [i, j). The backing array is
// shared; series are never mutated during analysis.
func (ts TimeSeries) Slice(i, j int) TimeSeries {
	return TimeSeries{District: ts.District, Points: ts.Points[i:j]}
}

// Validate checks the series invariants: strictly increasing dates and
// positive prices
func (ts TimeSeries) Validate() error {
	for i, p := range ts.Points {
		if p.Price <= 0 {
			return fmt.Errorf("series %s: non-positive price %.4f at %s", ts.District, p.Price, p.Date.Format("2006-01"))
		}
		if i > 0 && !p.Date.After(ts.Points[i-1].Date) {
			return fmt.Errorf("series %s: dates not strictly increasing at %s", ts.District, p.Date.Format("2006-01"))
		}
	}
	return nil
}

// Window is a train/test split used for walk-forward validation. The train
// prefix strictly precedes the contiguous 12-month test slice.
type Window struct {
	Train TimeSeries
	Test  TimeSeries
}

// ErrorScores maps each model kind to its averaged backtest error percent
type ErrorScores map[ModelKind]float64

// Best returns the model with minimal error. Exact ties (possible when
// several models collapse to the sentinel) break by the fixed precedence
// seasonal > linear > ensemble.
func (e ErrorScores) Best() ModelKind {
	best := ModelSeasonal
	for _, kind := range ModelKinds() {
		if e[kind] < e[best] {
			best = kind
		}
	}
	return best
}

// Band is the upper/lower uncertainty range carried by the seasonal
// projection, aligned 1:1 with the projection points
type Band struct {
	Upper []float64 `json:"upper"`
	Lower []float64 `json:"lower"`
}

// Projection is one model's forward forecast: monthly points starting the
// month immediately after the last historical date
type Projection struct {
	Model  ModelKind `json:"model"`
	Points []Point   `json:"points"`
	Band   *Band     `json:"band,omitempty"` // seasonal variant only
}

// LastPrice returns the final projected price
func (p Projection) LastPrice() float64 {
	if len(p.Points) == 0 {
		return 0
	}
	return p.Points[len(p.Points)-1].Price
}

// DistrictReport is one row of the final ranking
type DistrictReport struct {
	District     string                `json:"district"`
	CurrentPrice float64               `json:"current_price"`
	Returns      map[ModelKind]float64 `json:"returns"` // percent, per model
	Errors       ErrorScores           `json:"errors"`  // percent, per model
	BestModel    ModelKind             `json:"best_model"`
}

// BestReturn returns the selected model's expected return percent
func (r DistrictReport) BestReturn() float64 {
	return r.Returns[r.BestModel]
}

// FutureIndex returns the projected price level implied by the given model's
// return: current price times (1 + return%/100)
func (r DistrictReport) FutureIndex(kind ModelKind) float64 {
	return r.CurrentPrice * (1 + r.Returns[kind]/100)
}

// ForecastBundle is the full per-district artifact kept for inspection:
// history, every model's projection, and every model's error score
type ForecastBundle struct {
	History     TimeSeries               `json:"history"`
	Projections map[ModelKind]Projection `json:"projections"`
	Errors      ErrorScores              `json:"errors"`
}

// DistrictResult is the structured per-district outcome of a batch run:
// either a report plus bundle, or the error that excluded the district.
// Elapsed is the wall-clock time spent analyzing the district.
type DistrictResult struct {
	District string
	Report   *DistrictReport
	Bundle   *ForecastBundle
	Elapsed  time.Duration
	Err      error
}

// Ok reports whether the district was analyzed successfully
func (r DistrictResult) Ok() bool {
	return r.Err == nil
}

// ProgressFunc receives batch progress after each completed district:
// completed count, total count, and the district that just finished
type ProgressFunc func(done, total int, district string)

// Constants for the evaluation procedure
const (
	// MinHistoryMonths is the minimum history required to analyze a district
	MinHistoryMonths = 12

	// TestWindowMonths is the length of every held-out backtest slice
	TestWindowMonths = 12

	// SentinelError is assigned when genuine evaluation is impossible
	SentinelError = 99.9

	// PenaltyError is recorded for a single failed fit/predict in a window
	PenaltyError = 100.0

	// MinTrainPoints is the smallest train series any model accepts
	MinTrainPoints = 2

	// Walk-forward depth thresholds, in months of available history
	fullDepthHistoryMonths    = 60
	singleWindowHistoryMonths = 36
	maxBacktestWindows        = 3

	// Seasonal band width in residual standard deviations
	bandSigma = 1.96

	// Ensemble hyperparameters, fixed so repeated runs are identical
	ensembleTrees    = 100
	ensembleSeed     = 42
	ensembleMaxDepth = 5
	ensembleMinLeaf  = 2
)
