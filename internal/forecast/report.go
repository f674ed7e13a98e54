package forecast

import (
	"sort"
	"time"
)

// PortfolioReport aggregates one analysis run: a ranked row per analyzed
// district, the ids of districts that were skipped, and the full forecast
// bundles kept aside for per-district inspection
type PortfolioReport struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Horizon     int                       `json:"horizon_months"`
	Reports     []DistrictReport          `json:"reports"`
	Skipped     []string                  `json:"skipped,omitempty"`
	Bundles     map[string]ForecastBundle `json:"-"`
}

// BuildPortfolioReport assembles the portfolio view from batch results.
// Failed districts contribute only their id to Skipped.
func BuildPortfolioReport(results []DistrictResult, horizon int) *PortfolioReport {
	report := &PortfolioReport{
		GeneratedAt: time.Now().UTC(),
		Horizon:     horizon,
		Reports:     make([]DistrictReport, 0, len(results)),
		Bundles:     make(map[string]ForecastBundle, len(results)),
	}
	for _, res := range results {
		if !res.Ok() {
			report.Skipped = append(report.Skipped, res.District)
			continue
		}
		report.Reports = append(report.Reports, *res.Report)
		report.Bundles[res.District] = *res.Bundle
	}
	return report
}

// Bundle returns the forecast bundle kept for a district
func (p *PortfolioReport) Bundle(district string) (ForecastBundle, bool) {
	b, ok := p.Bundles[district]
	return b, ok
}

// Districts returns the analyzed district ids in report order
func (p *PortfolioReport) Districts() []string {
	ids := make([]string, len(p.Reports))
	for i, r := range p.Reports {
		ids[i] = r.District
	}
	return ids
}

// SortByReturn orders reports by the given model's expected return percent,
// highest first. District id breaks ties so the order is stable across runs.
func (p *PortfolioReport) SortByReturn(kind ModelKind) {
	sort.Slice(p.Reports, func(i, j int) bool {
		ri, rj := p.Reports[i].Returns[kind], p.Reports[j].Returns[kind]
		if ri != rj {
			return ri > rj
		}
		return p.Reports[i].District < p.Reports[j].District
	})
}

// SortByBestReturn orders reports by each district's selected-model return,
// highest first
func (p *PortfolioReport) SortByBestReturn() {
	sort.Slice(p.Reports, func(i, j int) bool {
		ri, rj := p.Reports[i].BestReturn(), p.Reports[j].BestReturn()
		if ri != rj {
			return ri > rj
		}
		return p.Reports[i].District < p.Reports[j].District
	})
}

// SortByFutureIndex orders reports by the price level the given model
// projects, highest first
func (p *PortfolioReport) SortByFutureIndex(kind ModelKind) {
	sort.Slice(p.Reports, func(i, j int) bool {
		fi, fj := p.Reports[i].FutureIndex(kind), p.Reports[j].FutureIndex(kind)
		if fi != fj {
			return fi > fj
		}
		return p.Reports[i].District < p.Reports[j].District
	})
}
