package forecast

import (
	"fmt"
	"time"
)

// ForecastModel is the uniform contract shared by the three model families:
// fit on a training series, then predict prices for arbitrary target dates.
type ForecastModel interface {
	// Kind identifies the model family
	Kind() ModelKind

	// Fit estimates the model from the training series. It returns
	// InsufficientDataError when the series is shorter than MinTrainPoints
	// and ModelFitError when estimation fails.
	Fit(train TimeSeries) (FittedModel, error)
}

// FittedModel predicts prices for target dates, aligned 1:1 with the input
type FittedModel interface {
	Predict(dates []time.Time) []float64
}

// BandedModel is implemented by fitted models that carry an uncertainty band
// around the point forecast
type BandedModel interface {
	FittedModel
	PredictBand(dates []time.Time) (upper, lower []float64)
}

// NewModel returns a fresh model of the given kind
func NewModel(kind ModelKind) ForecastModel {
	switch kind {
	case ModelSeasonal:
		return &SeasonalTrendModel{}
	case ModelLinear:
		return &LinearTrendModel{}
	case ModelEnsemble:
		return &EnsembleTreeModel{}
	default:
		panic(fmt.Sprintf("unknown model kind %d", kind))
	}
}
