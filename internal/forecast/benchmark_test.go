package forecast

import (
	"context"
	"testing"
	"time"
)

// Benchmarks for the hot paths of a portfolio run: model fitting, the
// walk-forward loop, and the complete per-district pipeline

// BenchmarkModelFit benchmarks a single fit per model family
func BenchmarkModelFit(b *testing.B) {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	series := makeSeries("Gangnam-gu", start, 120, func(i int) float64 {
		return 100 + 0.9*float64(i)
	})

	for _, kind := range ModelKinds() {
		b.Run(kind.String(), func(b *testing.B) {
			model := NewModel(kind)
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := model.Fit(series); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBacktesterRun benchmarks walk-forward scoring at common history sizes
func BenchmarkBacktesterRun(b *testing.B) {
	benchmarks := []struct {
		name   string
		months int
	}{
		{"single_window_48_months", 48},
		{"full_depth_72_months", 72},
		{"long_history_120_months", 120},
	}

	ctx := context.Background()
	backtester := NewBacktester(testLogger())

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
			series := makeSeries("Gangnam-gu", start, bm.months, func(i int) float64 {
				return 100 + 0.7*float64(i)
			})
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := backtester.Run(ctx, series); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkAnalyzeDistrict benchmarks the complete per-district pipeline
func BenchmarkAnalyzeDistrict(b *testing.B) {
	ctx := context.Background()
	analyzer := NewDistrictAnalyzer(12, testLogger())
	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	series := makeSeries("Gangnam-gu", start, 96, func(i int) float64 {
		return 100 + 0.8*float64(i)
	})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, _, err := analyzer.AnalyzeDistrict(ctx, series); err != nil {
			b.Fatal(err)
		}
	}
}
