package service

import (
	"time"

	"github.com/saadjs/carbon-cli/internal/model"
)

type TodayStatus struct {
	Date       string                `json:"date"`
	Total      float64               `json:"total"`
	Count      int                   `json:"count"`
	Categories []model.CategoryTotal `json:"categories"`
}

// TodaySummary reports ownerID's emissions for the calendar day of date.
func (r *Repository) TodaySummary(ownerID string, date time.Time) TodayStatus {
	day := date.In(r.loc).Format(dayLayout)
	matched := make([]model.EmissionRecord, 0)
	for _, rec := range r.Records(ownerID) {
		if rec.CreatedAt.In(r.loc).Format(dayLayout) == day {
			matched = append(matched, rec)
		}
	}
	return TodayStatus{
		Date:       day,
		Total:      SumEmissions(matched),
		Count:      len(matched),
		Categories: SummarizeCategories(matched),
	}
}
