package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/service"
	"github.com/saadjs/carbon-cli/internal/storage"
)

var ignoreID = cmpopts.IgnoreFields(model.EmissionRecord{}, "ID")

func seedMixed(t *testing.T, repo *service.Repository, clock *testClock) {
	t.Helper()
	clock.Set(time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC))
	travel := draftFor(model.CategoryBusinessTravel, 120.25)
	travel.Details.Set("activity_id", model.StringValue("passenger_flight-route_type_domestic"))
	travel.Details.Set("factor", model.NumberValue(0.18))
	co2 := 119.0
	travel.CO2 = &co2
	mustAdd(t, repo, travel, "u1")
	clock.Set(time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC))
	mustAdd(t, repo, cpuDraft(4.75), "u1")
	clock.Set(fixedNow)
}

func TestExportJSONShape(t *testing.T) {
	t.Parallel()
	repo, clock := newTestRepo(t, storage.NewMemory())
	seedMixed(t, repo, clock)
	mustAdd(t, repo, cpuDraft(99), "u2")

	out, err := repo.ExportJSON("u1", "ada@example.com")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "\n  \"exportDate\"") {
		t.Fatalf("expected pretty-printed output, got %s", out)
	}
	var doc service.ExportDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.UserID != "u1" || doc.UserEmail != "ada@example.com" || doc.TotalRecords != 2 || doc.TotalEmissions != 125 {
		t.Fatalf("unexpected export header %+v", doc)
	}
	if len(doc.Summary.CategoryTotals) != 2 || len(doc.Summary.MonthlyTotals) != 2 {
		t.Fatalf("unexpected export summary %+v", doc.Summary)
	}
	if !doc.ExportDate.Equal(fixedNow) {
		t.Fatalf("unexpected export date %v", doc.ExportDate)
	}

	anon, err := repo.ExportJSON("u2", "")
	if err != nil {
		t.Fatalf("export u2: %v", err)
	}
	if !strings.Contains(anon, `"userEmail": "Unknown"`) {
		t.Fatalf("expected Unknown email, got %s", anon)
	}
	if _, err := repo.ExportJSON("", "x"); !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestExportFileName(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	if got := service.ExportFileName("ada@example.com", at); got != "carbon-emissions-history-ada-2025-06-15.json" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := service.ExportFileName("", at); got != "carbon-emissions-history-user-2025-06-15.json" {
		t.Fatalf("unexpected fallback file name %q", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, clock := newTestRepo(t, storage.NewMemory())
	seedMixed(t, repo, clock)
	before := repo.Records("u1")

	out, err := repo.ExportJSON("u1", "ada@example.com")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	report, err := repo.ImportJSON(ctx, out, "u1")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 2 || report.Replaced != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	after := repo.Records("u1")
	if diff := cmp.Diff(before, after, ignoreID); diff != "" {
		t.Fatalf("round trip changed records (-before +after):\n%s", diff)
	}
	for i := range after {
		if after[i].ID == before[i].ID {
			t.Fatalf("expected regenerated id for record %d", i)
		}
	}
}

func TestImportReownsAndReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	mustAdd(t, repo, cpuDraft(1), "u1")
	keep := mustAdd(t, repo, cpuDraft(2), "u2")

	payload := `{"exportDate":"whatever","extra":[1,2],"records":[
{"id":"rec-002","userId":"u2","timestamp":"2025-01-01T00:00:00Z","category":"cloud-storage","co2e":3.5,"co2e_unit":"kg","details":{"x":1},"formData":{}},
{"id":"spoof","userId":"admin","category":"cloud-memory","co2e":1}
]}`
	report, err := repo.ImportJSON(ctx, payload, "u1")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 2 || report.Replaced != 1 || report.TotalEmissions != 4.5 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("expected unit and timestamp warnings, got %v", report.Warnings)
	}

	recs := repo.Records("u1")
	if len(recs) != 2 {
		t.Fatalf("expected replace semantics, got %d records", len(recs))
	}
	for _, rec := range recs {
		if rec.OwnerID != "u1" || rec.ID == "rec-002" || rec.ID == "spoof" {
			t.Fatalf("expected re-owned record with fresh id, got %+v", rec)
		}
	}
	if recs[1].CategoryLabel != "Cloud Memory" || !recs[1].CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected defaults applied, got %+v", recs[1])
	}
	if _, ok := repo.Record(keep, "u2"); !ok {
		t.Fatalf("u2's record must survive u1's import")
	}
}

func TestImportIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	payload := `{"records":[{"timestamp":"2025-02-03T04:05:06Z","category":"business-travel","co2e":10,"co2e_unit":"kg"},{"timestamp":"2025-02-04T04:05:06Z","category":"cloud-cpu","co2e":2,"co2e_unit":"kg"}]}`

	if _, err := repo.ImportJSON(ctx, payload, "u1"); err != nil {
		t.Fatalf("first import: %v", err)
	}
	once := repo.Records("u1")
	if _, err := repo.ImportJSON(ctx, payload, "u1"); err != nil {
		t.Fatalf("second import: %v", err)
	}
	twice := repo.Records("u1")
	if diff := cmp.Diff(once, twice, ignoreID); diff != "" {
		t.Fatalf("re-import changed content (-once +twice):\n%s", diff)
	}
}

func TestImportRejectsMalformedInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	existing := mustAdd(t, repo, cpuDraft(1), "u1")

	cases := map[string]string{
		"not json":         `{records`,
		"array root":       `[{"category":"cloud-cpu"}]`,
		"missing records":  `{"items":[]}`,
		"null records":     `{"records":null}`,
		"records object":   `{"records":{}}`,
		"unknown category": `{"records":[{"category":"hotel","co2e":1}]}`,
		"negative co2e":    `{"records":[{"category":"cloud-cpu","co2e":-1}]}`,
		"string co2e":      `{"records":[{"category":"cloud-cpu","co2e":"1"}]}`,
		"bad timestamp":    `{"records":[{"category":"cloud-cpu","co2e":1,"timestamp":"yesterday"}]}`,
		"empty":            ``,
	}
	for name, payload := range cases {
		if _, err := repo.ImportJSON(ctx, payload, "u1"); !errors.Is(err, service.ErrMalformedInput) {
			t.Fatalf("%s: expected ErrMalformedInput, got %v", name, err)
		}
	}
	if _, ok := repo.Record(existing, "u1"); !ok || repo.TotalRecords("u1") != 1 {
		t.Fatalf("malformed imports must not mutate state")
	}
	if _, err := repo.ImportJSON(ctx, `{"records":[]}`, ""); !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestImportBlankTimestampDefaultsToNow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())

	payload := `{"records":[{"category":"cloud-cpu","co2e":1,"timestamp":""},{"category":"cloud-memory","co2e":2,"timestamp":null}]}`
	report, err := repo.ImportJSON(ctx, payload, "u1")
	if err != nil {
		t.Fatalf("import blank timestamps: %v", err)
	}
	if report.Imported != 2 {
		t.Fatalf("expected 2 imported, got %+v", report)
	}
	for _, rec := range repo.Records("u1") {
		if !rec.CreatedAt.Equal(fixedNow) {
			t.Fatalf("expected import time for %s, got %v", rec.Category, rec.CreatedAt)
		}
	}
	missing := 0
	for _, w := range report.Warnings {
		if strings.Contains(w, "missing timestamp") {
			missing++
		}
	}
	if missing != 2 {
		t.Fatalf("expected two missing timestamp warnings, got %v", report.Warnings)
	}
}

func TestImportDryRunDoesNotMutate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	repo, _ := newTestRepo(t, store)
	mustAdd(t, repo, cpuDraft(1), "u1")
	before, _, _ := store.Get(ctx, storage.HistoryKey("u1"))

	report, err := repo.ImportJSONWithOptions(ctx, `{"records":[{"category":"cloud-cpu","co2e":5,"co2e_unit":"kg","timestamp":"2025-01-01T00:00:00Z"}]}`, "u1", service.ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !report.DryRun || report.Imported != 1 || report.Replaced != 1 {
		t.Fatalf("unexpected dry-run report %+v", report)
	}
	after, _, _ := store.Get(ctx, storage.HistoryKey("u1"))
	if before != after || repo.TotalEmissions("u1") != 1 {
		t.Fatalf("dry run must not change state or storage")
	}
}

func TestImportStorageFailureSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFlakyStore()
	repo, _ := newTestRepo(t, store)
	mustAdd(t, repo, cpuDraft(1), "u1")
	store.setFailures(true, false)

	_, err := repo.ImportJSON(ctx, `{"records":[]}`, "u1")
	if !errors.Is(err, service.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
	if repo.TotalRecords("u1") != 1 {
		t.Fatalf("failed import must roll back")
	}
}
