package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/model"
)

const unknownOwnerLabel = "Unknown"

type ExportSummary struct {
	CategoryTotals []model.CategoryTotal `json:"categoryTotals"`
	MonthlyTotals  []model.MonthlyTotal  `json:"monthlyTotals"`
}

// ExportDocument is the self-describing snapshot produced by ExportJSON.
type ExportDocument struct {
	ExportDate     time.Time              `json:"exportDate"`
	UserID         string                 `json:"userId"`
	UserEmail      string                 `json:"userEmail"`
	TotalRecords   int                    `json:"totalRecords"`
	TotalEmissions float64                `json:"totalEmissions"`
	Records        []model.EmissionRecord `json:"records"`
	Summary        ExportSummary          `json:"summary"`
}

type ImportOptions struct {
	DryRun bool
}

type ImportReport struct {
	Imported       int      `json:"imported"`
	Replaced       int      `json:"replaced"`
	TotalEmissions float64  `json:"total_emissions"`
	DryRun         bool     `json:"dry_run,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ExportJSON renders ownerID's records and aggregates as pretty-printed
// JSON. ownerLabel is usually the owner's email.
func (r *Repository) ExportJSON(ownerID, ownerLabel string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		r.metrics.ObserveOperation("export", ErrNotAuthenticated)
		return "", fmt.Errorf("export history: %w", ErrNotAuthenticated)
	}
	if strings.TrimSpace(ownerLabel) == "" {
		ownerLabel = unknownOwnerLabel
	}
	records := r.Records(ownerID)
	doc := ExportDocument{
		ExportDate:     r.now().UTC(),
		UserID:         ownerID,
		UserEmail:      ownerLabel,
		TotalRecords:   len(records),
		TotalEmissions: SumEmissions(records),
		Records:        records,
		Summary: ExportSummary{
			CategoryTotals: SummarizeCategories(records),
			MonthlyTotals:  SummarizeMonths(records, r.loc),
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.metrics.ObserveOperation("export", err)
		return "", fmt.Errorf("encode export: %w", err)
	}
	r.metrics.ObserveOperation("export", nil)
	return string(data), nil
}

// ExportFileName is the suggested download name for an export taken at.
func ExportFileName(ownerLabel string, at time.Time) string {
	name := "user"
	if local, _, _ := strings.Cut(strings.TrimSpace(ownerLabel), "@"); local != "" && ownerLabel != unknownOwnerLabel {
		name = local
	}
	return fmt.Sprintf("carbon-emissions-history-%s-%s.json", name, at.UTC().Format(dayLayout))
}

func (r *Repository) ImportJSON(ctx context.Context, jsonText, ownerID string) (ImportReport, error) {
	return r.ImportJSONWithOptions(ctx, jsonText, ownerID, ImportOptions{})
}

// ImportJSONWithOptions replaces ownerID's records with those in jsonText.
// Every imported record is re-owned to ownerID and gets a fresh id.
// Validation happens before any state changes; DryRun stops there.
func (r *Repository) ImportJSONWithOptions(ctx context.Context, jsonText, ownerID string, opts ImportOptions) (ImportReport, error) {
	report := ImportReport{DryRun: opts.DryRun}
	if strings.TrimSpace(ownerID) == "" {
		r.metrics.ObserveOperation("import", ErrNotAuthenticated)
		return report, fmt.Errorf("import history: %w", ErrNotAuthenticated)
	}
	parsed, warnings, err := parseImport(jsonText)
	if err != nil {
		r.metrics.ObserveOperation("import", err)
		return report, fmt.Errorf("import history: %w", err)
	}
	report.Warnings = warnings

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.hydrateLocked(ctx, ownerID); err != nil {
		r.metrics.ObserveOperation("import", err)
		return report, fmt.Errorf("import history: %w", err)
	}

	now := r.now()
	imported := make([]model.EmissionRecord, 0, len(parsed))
	taken := make(map[string]struct{}, len(parsed))
	for _, rec := range parsed {
		rec.OwnerID = ownerID
		for {
			rec.ID = r.uniqueIDLocked()
			if _, dup := taken[rec.ID]; !dup {
				break
			}
		}
		taken[rec.ID] = struct{}{}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		imported = append(imported, rec)
	}
	report.Imported = len(imported)
	report.Replaced = countOwner(r.state.Records, ownerID)
	report.TotalEmissions = SumEmissions(imported)
	if opts.DryRun {
		r.metrics.ObserveOperation("import", nil)
		return report, nil
	}

	next := append(withoutOwner(r.state.Records, ownerID), imported...)
	if err := r.commitLocked(ctx, ownerID, next); err != nil {
		r.metrics.ObserveOperation("import", err)
		return ImportReport{DryRun: opts.DryRun}, err
	}
	r.metrics.ObserveOperation("import", nil)
	r.publish(ctx, events.Event{Type: events.HistoryImported, OwnerID: ownerID, Count: len(imported), CO2e: report.TotalEmissions, At: now})
	return report, nil
}

// parseImport accepts any JSON object carrying a records array. One
// invalid record rejects the whole payload.
func parseImport(jsonText string) ([]model.EmissionRecord, []string, error) {
	var doc struct {
		Records *[]json.RawMessage `json:"records"`
	}
	trimmed := bytes.TrimSpace([]byte(jsonText))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, fmt.Errorf("%w: expected a JSON object with a records array", ErrMalformedInput)
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if doc.Records == nil {
		return nil, nil, fmt.Errorf("%w: missing records array", ErrMalformedInput)
	}

	out := make([]model.EmissionRecord, 0, len(*doc.Records))
	var warnings []string
	for i, raw := range *doc.Records {
		var in struct {
			model.EmissionRecord
			Timestamp json.RawMessage `json:"timestamp"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, nil, fmt.Errorf("%w: record %d: %v", ErrMalformedInput, i, err)
		}
		rec := in.EmissionRecord
		if ts := bytes.TrimSpace(in.Timestamp); len(ts) > 0 && !bytes.Equal(ts, []byte("null")) && !bytes.Equal(ts, []byte(`""`)) {
			if err := json.Unmarshal(ts, &rec.CreatedAt); err != nil {
				return nil, nil, fmt.Errorf("%w: record %d: %v", ErrMalformedInput, i, err)
			}
		}
		if !rec.Category.Valid() {
			return nil, nil, fmt.Errorf("%w: record %d: unknown category %q", ErrMalformedInput, i, rec.Category)
		}
		if math.IsNaN(rec.CO2e) || math.IsInf(rec.CO2e, 0) || rec.CO2e < 0 {
			return nil, nil, fmt.Errorf("%w: record %d: co2e must be a finite number >= 0", ErrMalformedInput, i)
		}
		if rec.CategoryLabel == "" {
			rec.CategoryLabel = rec.Category.Label()
		}
		if rec.CO2eUnit == "" {
			rec.CO2eUnit = "kg"
			warnings = append(warnings, fmt.Sprintf("record %d: missing co2e_unit, assumed kg", i))
		}
		if rec.CreatedAt.IsZero() {
			warnings = append(warnings, fmt.Sprintf("record %d: missing timestamp, using import time", i))
		}
		out = append(out, rec)
	}
	return out, warnings, nil
}
