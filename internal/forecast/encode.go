package forecast

import "time"

// ordinalEpoch anchors the ordinal day encoding. Any fixed reference works
// as long as fit and predict share it.
var ordinalEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ordinalDay maps a date to a day count from the epoch. The encoding is
// strictly monotonic in time, which is all the trend models require.
func ordinalDay(t time.Time) float64 {
	return t.Sub(ordinalEpoch).Hours() / 24
}

// encodeDates maps each date to its ordinal day value
func encodeDates(dates []time.Time) []float64 {
	xs := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = ordinalDay(d)
	}
	return xs
}

// futureDates returns n monthly dates starting the month immediately after
// last, normalized to the first of the month
func futureDates(last time.Time, n int) []time.Time {
	base := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = base.AddDate(0, i+1, 0)
	}
	return dates
}
