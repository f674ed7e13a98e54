package dataset

import (
	"sort"
	"time"

	"hpicli/internal/forecast"
)

// Row is one long-format observation: a district's index value for a month
type Row struct {
	Date     time.Time `json:"date"`
	District string    `json:"district"`
	Price    float64   `json:"price"`
}

// Table is the cleaned long-format dataset, sorted by district then date
type Table struct {
	Rows []Row `json:"rows"`
}

// Len returns the number of observations
func (t *Table) Len() int {
	return len(t.Rows)
}

// Districts returns the distinct district ids in ascending order
func (t *Table) Districts() []string {
	seen := make(map[string]struct{})
	var districts []string
	for _, r := range t.Rows {
		if _, ok := seen[r.District]; ok {
			continue
		}
		seen[r.District] = struct{}{}
		districts = append(districts, r.District)
	}
	sort.Strings(districts)
	return districts
}

// Series groups the table into one ordered time series per district,
// districts in ascending id order
func (t *Table) Series() []forecast.TimeSeries {
	grouped := make(map[string][]forecast.Point)
	for _, r := range t.Rows {
		grouped[r.District] = append(grouped[r.District], forecast.Point{Date: r.Date, Price: r.Price})
	}

	series := make([]forecast.TimeSeries, 0, len(grouped))
	for district, points := range grouped {
		sort.Slice(points, func(i, j int) bool {
			return points[i].Date.Before(points[j].Date)
		})
		series = append(series, forecast.TimeSeries{District: district, Points: points})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].District < series[j].District
	})
	return series
}

// sortRows fixes the canonical (district, date) ordering
func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].District != rows[j].District {
			return rows[i].District < rows[j].District
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}
