package service

import (
	"cmp"
	"slices"
	"time"

	"github.com/saadjs/carbon-cli/internal/model"
)

const (
	DefaultRecentLimit = 10
	DefaultTrendDays   = 30
	dayLayout          = "2006-01-02"
	monthLayout        = "2006-01"
)

func (r *Repository) TotalEmissions(ownerID string) float64 {
	return SumEmissions(r.Records(ownerID))
}

func (r *Repository) CategoryTotals(ownerID string) []model.CategoryTotal {
	return SummarizeCategories(r.Records(ownerID))
}

func (r *Repository) MonthlyTotals(ownerID string) []model.MonthlyTotal {
	return SummarizeMonths(r.Records(ownerID), r.loc)
}

// RecentRecords returns ownerID's n newest records. n <= 0 means
// DefaultRecentLimit.
func (r *Repository) RecentRecords(ownerID string, n int) []model.EmissionRecord {
	return MostRecent(r.Records(ownerID), n)
}

// EmissionTrend returns days+1 daily points ending today.
func (r *Repository) EmissionTrend(ownerID string, days int) []model.DailyTrendPoint {
	return Trend(r.Records(ownerID), days, r.now(), r.loc)
}

func (r *Repository) AverageEmissionPerCategory(ownerID string) map[model.Category]float64 {
	out := make(map[model.Category]float64)
	for _, ct := range r.CategoryTotals(ownerID) {
		if ct.Count > 0 {
			out[ct.Category] = ct.Total / float64(ct.Count)
		}
	}
	return out
}

func SumEmissions(records []model.EmissionRecord) float64 {
	total := 0.0
	for _, rec := range records {
		total += rec.CO2e
	}
	return total
}

// SummarizeCategories groups records by category, sorted by total
// descending. Ties keep the order in which categories first appear.
// Percentages are 0 when the grand total is 0.
func SummarizeCategories(records []model.EmissionRecord) []model.CategoryTotal {
	out := make([]model.CategoryTotal, 0)
	index := make(map[model.Category]int)
	grand := 0.0
	for _, rec := range records {
		grand += rec.CO2e
		i, ok := index[rec.Category]
		if !ok {
			label := rec.CategoryLabel
			if label == "" {
				label = rec.Category.Label()
			}
			index[rec.Category] = len(out)
			out = append(out, model.CategoryTotal{Category: rec.Category, CategoryLabel: label})
			i = len(out) - 1
		}
		out[i].Total += rec.CO2e
		out[i].Count++
	}
	for i := range out {
		if grand > 0 {
			out[i].Percentage = out[i].Total / grand * 100
		}
	}
	slices.SortStableFunc(out, func(a, b model.CategoryTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}

// SummarizeMonths groups records by YYYY-MM of their creation time in loc,
// ascending by month.
func SummarizeMonths(records []model.EmissionRecord, loc *time.Location) []model.MonthlyTotal {
	byMonth := make(map[string]*model.MonthlyTotal)
	for _, rec := range records {
		t := rec.CreatedAt.In(loc)
		key := t.Format(monthLayout)
		mt, ok := byMonth[key]
		if !ok {
			mt = &model.MonthlyTotal{Month: key, Year: t.Year()}
			byMonth[key] = mt
		}
		mt.Total += rec.CO2e
		mt.Count++
	}
	out := make([]model.MonthlyTotal, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	slices.SortFunc(out, func(a, b model.MonthlyTotal) int {
		return cmp.Compare(a.Month, b.Month)
	})
	return out
}

func MostRecent(records []model.EmissionRecord, n int) []model.EmissionRecord {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b model.EmissionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Trend buckets emissions per calendar day in loc, from days before now
// through now's day inclusive. Negative days are treated as 0. Records
// outside the window are ignored.
func Trend(records []model.EmissionRecord, days int, now time.Time, loc *time.Location) []model.DailyTrendPoint {
	if days < 0 {
		days = 0
	}
	today := now.In(loc)
	y, m, d := today.Date()

	out := make([]model.DailyTrendPoint, days+1)
	index := make(map[string]int, days+1)
	for i := 0; i <= days; i++ {
		key := time.Date(y, m, d-days+i, 0, 0, 0, 0, loc).Format(dayLayout)
		out[i] = model.DailyTrendPoint{Date: key}
		index[key] = i
	}
	for _, rec := range records {
		if i, ok := index[rec.CreatedAt.In(loc).Format(dayLayout)]; ok {
			out[i].Emissions += rec.CO2e
		}
	}
	return out
}
