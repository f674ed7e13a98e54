package forecast

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestModelKind tests the model kind enumeration and its encodings
func TestModelKind(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		tests := []struct {
			name     string
			kind     ModelKind
			expected string
		}{
			{"seasonal", ModelSeasonal, "seasonal"},
			{"linear", ModelLinear, "linear"},
			{"ensemble", ModelEnsemble, "ensemble"},
			{"unknown", ModelKind(99), "unknown"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, tt.kind.String())
			})
		}
	})

	t.Run("precedence order", func(t *testing.T) {
		assert.Equal(t, []ModelKind{ModelSeasonal, ModelLinear, ModelEnsemble}, ModelKinds())
	})

	t.Run("JSON map keys use model names", func(t *testing.T) {
		data, err := json.Marshal(map[ModelKind]float64{ModelSeasonal: 1.5, ModelLinear: 2.5})
		require.NoError(t, err)
		assert.JSONEq(t, `{"seasonal":1.5,"linear":2.5}`, string(data))

		var decoded map[ModelKind]float64
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, 1.5, decoded[ModelSeasonal])
		assert.Equal(t, 2.5, decoded[ModelLinear])
	})

	t.Run("ParseModelKind", func(t *testing.T) {
		for _, kind := range ModelKinds() {
			parsed, err := ParseModelKind(kind.String())
			require.NoError(t, err)
			assert.Equal(t, kind, parsed)
		}

		_, err := ParseModelKind("prophet")
		assert.Error(t, err)
	})
}

// TestTimeSeries tests series accessors and invariant validation
func TestTimeSeries(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	series := makeSeries("Gangnam-gu", start, 6, func(i int) float64 {
		return 100.0 + float64(i)
	})

	t.Run("accessors", func(t *testing.T) {
		assert.Equal(t, 6, series.Len())
		assert.Equal(t, start, series.Dates()[0])
		assert.Equal(t, []float64{100, 101, 102, 103, 104, 105}, series.Prices())
		assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), series.LastDate())
		assert.Equal(t, 105.0, series.CurrentPrice())
	})

	t.Run("empty series", func(t *testing.T) {
		var empty TimeSeries
		assert.Equal(t, 0, empty.Len())
		assert.True(t, empty.LastDate().IsZero())
		assert.Zero(t, empty.CurrentPrice())
	})

	t.Run("Slice", func(t *testing.T) {
		sub := series.Slice(2, 5)
		assert.Equal(t, "Gangnam-gu", sub.District)
		assert.Equal(t, 3, sub.Len())
		assert.Equal(t, 102.0, sub.Points[0].Price)
		assert.Equal(t, 104.0, sub.CurrentPrice())
	})

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(t, series.Validate())

		zeroPrice := makeSeries("Jongno-gu", start, 3, func(i int) float64 {
			if i == 1 {
				return 0
			}
			return 100
		})
		err := zeroPrice.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Jongno-gu")

		duplicate := TimeSeries{District: "Mapo-gu", Points: []Point{
			{Date: start, Price: 100},
			{Date: start, Price: 101},
		}}
		err = duplicate.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strictly increasing")
	})
}

// TestErrorScoresBest tests minimal-error selection and the tie-break rule
func TestErrorScoresBest(t *testing.T) {
	tests := []struct {
		name     string
		scores   ErrorScores
		expected ModelKind
	}{
		{
			name:     "linear lowest",
			scores:   ErrorScores{ModelSeasonal: 5.0, ModelLinear: 1.2, ModelEnsemble: 3.4},
			expected: ModelLinear,
		},
		{
			name:     "ensemble lowest",
			scores:   ErrorScores{ModelSeasonal: 5.0, ModelLinear: 4.0, ModelEnsemble: 0.9},
			expected: ModelEnsemble,
		},
		{
			name:     "all sentinel falls back to seasonal",
			scores:   ErrorScores{ModelSeasonal: SentinelError, ModelLinear: SentinelError, ModelEnsemble: SentinelError},
			expected: ModelSeasonal,
		},
		{
			name:     "two sentinels with one genuine score",
			scores:   ErrorScores{ModelSeasonal: SentinelError, ModelLinear: SentinelError, ModelEnsemble: 12.0},
			expected: ModelEnsemble,
		},
		{
			name:     "tie between linear and ensemble prefers linear",
			scores:   ErrorScores{ModelSeasonal: 9.0, ModelLinear: 2.0, ModelEnsemble: 2.0},
			expected: ModelLinear,
		},
		{
			name:     "tie between seasonal and linear prefers seasonal",
			scores:   ErrorScores{ModelSeasonal: 2.0, ModelLinear: 2.0, ModelEnsemble: 7.0},
			expected: ModelSeasonal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.scores.Best())
		})
	}
}

// TestDistrictReport tests the derived report accessors
func TestDistrictReport(t *testing.T) {
	report := DistrictReport{
		District:     "Gangnam-gu",
		CurrentPrice: 100.0,
		Returns: map[ModelKind]float64{
			ModelSeasonal: 5.0,
			ModelLinear:   -3.0,
			ModelEnsemble: 1.0,
		},
		Errors: ErrorScores{
			ModelSeasonal: 2.0,
			ModelLinear:   4.0,
			ModelEnsemble: 8.0,
		},
		BestModel: ModelSeasonal,
	}

	assert.Equal(t, 5.0, report.BestReturn())
	assert.InDelta(t, 105.0, report.FutureIndex(ModelSeasonal), 1e-9)
	assert.InDelta(t, 97.0, report.FutureIndex(ModelLinear), 1e-9)
	assert.InDelta(t, 101.0, report.FutureIndex(ModelEnsemble), 1e-9)
}

// TestProjectionLastPrice tests the final projected value accessor
func TestProjectionLastPrice(t *testing.T) {
	var empty Projection
	assert.Zero(t, empty.LastPrice())

	proj := Projection{Model: ModelLinear, Points: []Point{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: 110},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Price: 112},
	}}
	assert.Equal(t, 112.0, proj.LastPrice())
}

// TestDistrictResult tests the batch result wrapper
func TestDistrictResult(t *testing.T) {
	ok := DistrictResult{District: "Gangnam-gu", Report: &DistrictReport{}}
	assert.True(t, ok.Ok())

	failed := DistrictResult{
		District: "Jongno-gu",
		Err:      &InsufficientHistoryError{District: "Jongno-gu", Months: 8},
	}
	assert.False(t, failed.Ok())
}

// makeSeries builds a district series of n monthly points starting at start,
// with prices produced by the generator
func makeSeries(district string, start time.Time, n int, price func(i int) float64) TimeSeries {
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{Date: start.AddDate(0, i, 0), Price: price(i)}
	}
	return TimeSeries{District: district, Points: points}
}

// testLogger returns a logger that stays quiet unless something goes wrong
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
