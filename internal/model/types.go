package model

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryBusinessTravel    Category = "business-travel"
	CategoryIntermodalFreight Category = "intermodal-freight"
	CategoryCloudCPU          Category = "cloud-cpu"
	CategoryCloudStorage      Category = "cloud-storage"
	CategoryCloudMemory       Category = "cloud-memory"
)

var categoryLabels = map[Category]string{
	CategoryBusinessTravel:    "Business Travel",
	CategoryIntermodalFreight: "Intermodal Freight",
	CategoryCloudCPU:          "Cloud CPU",
	CategoryCloudStorage:      "Cloud Storage",
	CategoryCloudMemory:       "Cloud Memory",
}

// Categories lists the fixed category set in display order.
func Categories() []Category {
	return []Category{
		CategoryBusinessTravel,
		CategoryIntermodalFreight,
		CategoryCloudCPU,
		CategoryCloudStorage,
		CategoryCloudMemory,
	}
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", value)
	}
	return c, nil
}

// EmissionRecord is one logged emission event. JSON names match the
// history files written by the web client so exports stay interchangeable.
type EmissionRecord struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"userId"`
	CreatedAt     time.Time `json:"timestamp"`
	Category      Category  `json:"category"`
	CategoryLabel string    `json:"categoryLabel"`
	Label         string    `json:"customName,omitempty"`
	CO2e          float64   `json:"co2e"`
	CO2eUnit      string    `json:"co2e_unit"`
	CO2           *float64  `json:"co2,omitempty"`
	CH4           *float64  `json:"ch4,omitempty"`
	N2O           *float64  `json:"n2o,omitempty"`
	Details       Payload   `json:"details"`
	FormData      Payload   `json:"formData"`
	Source        string    `json:"source,omitempty"`
	LCAActivity   string    `json:"lcaActivity,omitempty"`
}

// RecordDraft carries the caller-supplied part of a record. Identity,
// owner and timestamp are assigned by the repository.
type RecordDraft struct {
	Category      Category
	CategoryLabel string
	Label         string
	CO2e          float64
	CO2eUnit      string
	CO2           *float64
	CH4           *float64
	N2O           *float64
	Details       Payload
	FormData      Payload
	Source        string
	LCAActivity   string
}

type HistoryState struct {
	Records      []EmissionRecord
	IsLoading    bool
	LastSyncedAt *time.Time
}

type CategoryTotal struct {
	Category      Category `json:"category"`
	CategoryLabel string   `json:"categoryLabel"`
	Total         float64  `json:"total"`
	Count         int      `json:"count"`
	Percentage    float64  `json:"percentage"`
}

type MonthlyTotal struct {
	Month string  `json:"month"`
	Year  int     `json:"year"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

type DailyTrendPoint struct {
	Date      string  `json:"date"`
	Emissions float64 `json:"emissions"`
}
