package forecast

import "fmt"

// InsufficientHistoryError marks a district excluded from analysis because
// its cleaned series is shorter than MinHistoryMonths
type InsufficientHistoryError struct {
	District string
	Months   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for district %s: %d months, need at least %d",
		e.District, e.Months, MinHistoryMonths)
}

// InsufficientDataError marks a model fit attempted on fewer than
// MinTrainPoints observations
type InsufficientDataError struct {
	Points int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data to fit model: %d points, need at least %d",
		e.Points, MinTrainPoints)
}

// InsufficientWindowError marks a single walk-forward window that cannot be
// formed from the available history. The window is skipped; evaluation
// continues with the remaining windows.
type InsufficientWindowError struct {
	Window int
	Train  int
	Test   int
}

func (e *InsufficientWindowError) Error() string {
	return fmt.Sprintf("backtest window %d cannot be formed: %d train points, %d test points",
		e.Window, e.Train, e.Test)
}

// ModelFitError wraps a failure inside a single model's fit or predict step
type ModelFitError struct {
	Model ModelKind
	Stage string // "fit" or "predict"
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("%s model %s failed: %v", e.Model, e.Stage, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// DistrictAnalysisError wraps any failure that excluded one district from a
// batch run. Other districts are unaffected.
type DistrictAnalysisError struct {
	District string
	Err      error
}

func (e *DistrictAnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for district %s: %v", e.District, e.Err)
}

func (e *DistrictAnalysisError) Unwrap() error {
	return e.Err
}
