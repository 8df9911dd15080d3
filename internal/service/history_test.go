package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/service"
	"github.com/saadjs/carbon-cli/internal/storage"
)

func TestAddThenReloadKeepsRecordOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	repo, _ := newTestRepo(t, store)

	draft := cpuDraft(12.5)
	draft.Label = " nightly batch "
	id := mustAdd(t, repo, draft, "u1")
	if id == "" {
		t.Fatalf("expected generated id")
	}

	reloaded, _ := newTestRepo(t, store)
	reloaded.Load(ctx, "u1")
	got := reloaded.Records("u1")
	if len(got) != 1 {
		t.Fatalf("expected exactly one record after reload, got %d", len(got))
	}
	want := model.EmissionRecord{
		OwnerID:       "u1",
		CreatedAt:     fixedNow,
		Category:      model.CategoryCloudCPU,
		CategoryLabel: "Cloud CPU",
		Label:         "nightly batch",
		CO2e:          12.5,
		CO2eUnit:      "kg",
		FormData:      draft.FormData,
		Source:        "local-formula",
	}
	if diff := cmp.Diff(want, got[0], cmpopts.IgnoreFields(model.EmissionRecord{}, "ID")); diff != "" {
		t.Fatalf("reloaded record mismatch (-want +got):\n%s", diff)
	}
	if st := reloaded.State(); st.LastSyncedAt == nil || !st.LastSyncedAt.Equal(fixedNow) {
		t.Fatalf("expected lastSyncedAt from bucket, got %v", st.LastSyncedAt)
	}
}

func TestAddRequiresOwner(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t, storage.NewMemory())
	id, err := repo.Add(context.Background(), cpuDraft(1), "")
	if !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected no id, got %q", id)
	}
	if n := len(repo.State().Records); n != 0 {
		t.Fatalf("expected no mutation, got %d records", n)
	}
}

func TestAddRejectsInvalidDraft(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t, storage.NewMemory())
	cases := []model.RecordDraft{
		{Category: "hotel", CO2e: 1},
		{Category: model.CategoryCloudStorage, CO2e: -0.5},
	}
	for _, d := range cases {
		if _, err := repo.Add(context.Background(), d, "u1"); !errors.Is(err, service.ErrMalformedInput) {
			t.Fatalf("expected ErrMalformedInput for %+v, got %v", d, err)
		}
	}
	if repo.TotalRecords("u1") != 0 {
		t.Fatalf("invalid drafts must not be stored")
	}
}

func TestOwnerIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	repo, _ := newTestRepo(t, store)

	a1 := mustAdd(t, repo, cpuDraft(3), "A")
	mustAdd(t, repo, cpuDraft(4), "B")

	if got := repo.TotalEmissions("A"); got != 3 {
		t.Fatalf("expected A total 3, got %v", got)
	}
	if _, ok := repo.Record(a1, "B"); ok {
		t.Fatalf("B must not see A's record")
	}
	if _, err := repo.Clear(ctx, "A"); err != nil {
		t.Fatalf("clear A: %v", err)
	}
	if repo.TotalRecords("B") != 1 {
		t.Fatalf("clearing A must leave B's record")
	}

	raw, ok, err := store.Get(ctx, storage.HistoryKey("B"))
	if err != nil || !ok {
		t.Fatalf("expected B bucket, ok=%v err=%v", ok, err)
	}
	b := service.NewRepository(store)
	b.Load(ctx, "B")
	if b.TotalRecords("B") != 1 {
		t.Fatalf("B bucket corrupted by A's writes: %s", raw)
	}
}

func TestDeleteForeignRecordIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	id := mustAdd(t, repo, cpuDraft(5), "u1")

	removed, err := repo.Delete(ctx, id, "u2")
	if err != nil {
		t.Fatalf("delete as u2: %v", err)
	}
	if removed {
		t.Fatalf("u2 must not delete u1's record")
	}
	if _, ok := repo.Record(id, "u1"); !ok {
		t.Fatalf("u1's record must remain")
	}

	removed, err = repo.Delete(ctx, id, "u1")
	if err != nil || !removed {
		t.Fatalf("expected owner delete to succeed, removed=%v err=%v", removed, err)
	}
	if repo.TotalRecords("u1") != 0 {
		t.Fatalf("expected empty collection after delete")
	}
	if removed, _ := repo.Delete(ctx, "missing", "u1"); removed {
		t.Fatalf("unknown id must be a no-op")
	}
}

func TestClearLeavesOtherOwners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	for i := 0; i < 3; i++ {
		mustAdd(t, repo, cpuDraft(1), "u1")
	}
	for i := 0; i < 2; i++ {
		mustAdd(t, repo, cpuDraft(2), "u2")
	}

	n, err := repo.Clear(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
	if repo.TotalRecords("u1") != 0 || repo.TotalRecords("u2") != 2 {
		t.Fatalf("unexpected counts u1=%d u2=%d", repo.TotalRecords("u1"), repo.TotalRecords("u2"))
	}
}

func TestMutationsRequireOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemory())
	if _, err := repo.Delete(ctx, "x", ""); !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("delete: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := repo.Clear(ctx, " "); !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("clear: expected ErrNotAuthenticated, got %v", err)
	}
	if err := repo.Persist(ctx, ""); err != nil {
		t.Fatalf("persist without owner must be a no-op, got %v", err)
	}
}

func TestFailedPersistRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFlakyStore()
	repo, _ := newTestRepo(t, store)
	keep := mustAdd(t, repo, cpuDraft(1), "u1")

	store.setFailures(true, false)
	if _, err := repo.Add(ctx, cpuDraft(2), "u1"); !errors.Is(err, service.ErrStorageFailure) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected storage failure wrapping cause, got %v", err)
	}
	if removed, err := repo.Delete(ctx, keep, "u1"); err == nil || removed {
		t.Fatalf("expected failed delete, removed=%v err=%v", removed, err)
	}
	if _, err := repo.Clear(ctx, "u1"); !errors.Is(err, service.ErrStorageFailure) {
		t.Fatalf("expected failed clear, got %v", err)
	}
	recs := repo.Records("u1")
	if len(recs) != 1 || recs[0].ID != keep {
		t.Fatalf("expected state rolled back to the single original record, got %+v", recs)
	}
}

func TestLoadDegradesToEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFlakyStore()
	repo, _ := newTestRepo(t, store)
	mustAdd(t, repo, cpuDraft(1), "u1")

	if err := store.Memory.Set(ctx, storage.HistoryKey("u1"), "{not json"); err != nil {
		t.Fatalf("seed corrupt bucket: %v", err)
	}
	repo.Load(ctx, "u1")
	if n := repo.TotalRecords("u1"); n != 0 {
		t.Fatalf("expected empty after corrupt bucket, got %d", n)
	}

	mustAdd(t, repo, cpuDraft(1), "u1")
	store.setFailures(false, true)
	repo.Load(ctx, "u1")
	if n := repo.TotalRecords("u1"); n != 0 {
		t.Fatalf("expected empty after read failure, got %d", n)
	}

	repo.Load(ctx, "")
	if st := repo.State(); len(st.Records) != 0 || st.IsLoading {
		t.Fatalf("expected empty idle state, got %+v", st)
	}
}

func TestMutationsMergeOwnersNotYetLoaded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	seed, _ := newTestRepo(t, store)
	for i := 0; i < 3; i++ {
		mustAdd(t, seed, cpuDraft(float64(i+1)), "u2")
	}

	repo, _ := newTestRepo(t, store)
	repo.Load(ctx, "u1")
	id := mustAdd(t, repo, cpuDraft(10), "u2")
	if id != "rec-004" {
		t.Fatalf("expected id past the stored ones, got %q", id)
	}

	reloaded, _ := newTestRepo(t, store)
	reloaded.Load(ctx, "u2")
	if n := reloaded.TotalRecords("u2"); n != 4 {
		t.Fatalf("expected stored records kept alongside the new one, got %d", n)
	}

	persisted, _ := newTestRepo(t, store)
	persisted.Load(ctx, "u1")
	if err := persisted.Persist(ctx, "u2"); err != nil {
		t.Fatalf("persist u2: %v", err)
	}
	reloaded.Load(ctx, "u2")
	if n := reloaded.TotalRecords("u2"); n != 4 {
		t.Fatalf("expected persist to keep stored records, got %d", n)
	}

	other, _ := newTestRepo(t, store)
	other.Load(ctx, "u1")
	removed, err := other.Clear(ctx, "u2")
	if err != nil {
		t.Fatalf("clear u2: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected clear to count every stored record, got %d", removed)
	}
}

func TestMutationRefusesUnreadableBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFlakyStore()
	seed, _ := newTestRepo(t, store)
	mustAdd(t, seed, cpuDraft(1), "u2")
	before, _, _ := store.Memory.Get(ctx, storage.HistoryKey("u2"))

	repo, _ := newTestRepo(t, store)
	store.setFailures(false, true)
	if _, err := repo.Add(ctx, cpuDraft(2), "u2"); !errors.Is(err, service.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
	store.setFailures(false, false)
	after, _, _ := store.Memory.Get(ctx, storage.HistoryKey("u2"))
	if before != after {
		t.Fatalf("bucket must be untouched when it cannot be read")
	}
}

func TestLoadFailureClearsLastSynced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFlakyStore()
	repo, _ := newTestRepo(t, store)
	mustAdd(t, repo, cpuDraft(1), "u1")
	repo.Load(ctx, "u1")
	if repo.State().LastSyncedAt == nil {
		t.Fatalf("expected lastSyncedAt after load")
	}

	store.setFailures(false, true)
	repo.Load(ctx, "u1")
	if st := repo.State(); st.LastSyncedAt != nil {
		t.Fatalf("expected lastSyncedAt cleared after read failure, got %v", st.LastSyncedAt)
	}

	store.setFailures(false, false)
	repo.Load(ctx, "u1")
	if err := store.Memory.Set(ctx, storage.HistoryKey("u1"), "{not json"); err != nil {
		t.Fatalf("seed corrupt bucket: %v", err)
	}
	repo.Load(ctx, "u1")
	if st := repo.State(); st.LastSyncedAt != nil {
		t.Fatalf("expected lastSyncedAt cleared after decode failure, got %v", st.LastSyncedAt)
	}
}

func TestLoadFiltersTamperedRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	tampered := `{"records":[
{"id":"a","userId":"u1","timestamp":"2025-01-02T03:04:05Z","category":"cloud-cpu","categoryLabel":"Cloud CPU","co2e":1,"co2e_unit":"kg","details":{},"formData":{}},
{"id":"b","userId":"intruder","timestamp":"2025-01-02T03:04:05Z","category":"cloud-cpu","categoryLabel":"Cloud CPU","co2e":9,"co2e_unit":"kg","details":{},"formData":{}}
],"lastUpdated":null,"version":"1.0","userId":"u1"}`
	if err := store.Set(ctx, storage.HistoryKey("u1"), tampered); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}
	repo, _ := newTestRepo(t, store)
	repo.Load(ctx, "u1")
	st := repo.State()
	if len(st.Records) != 1 || st.Records[0].ID != "a" {
		t.Fatalf("expected only u1's record, got %+v", st.Records)
	}
	if st.LastSyncedAt != nil {
		t.Fatalf("expected absent lastSyncedAt, got %v", st.LastSyncedAt)
	}
}

func TestPersistWritesVersionedBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	repo, clock := newTestRepo(t, store)
	mustAdd(t, repo, cpuDraft(1), "u1")
	mustAdd(t, repo, cpuDraft(1), "u2")

	later := fixedNow.Add(time.Hour)
	clock.Set(later)
	if err := repo.Persist(ctx, "u1"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	raw, _, _ := store.Get(ctx, storage.HistoryKey("u1"))
	for _, want := range []string{`"version":"1.0"`, `"userId":"u1"`, `"lastUpdated":"2025-06-15T13:00:00Z"`} {
		if !contains(raw, want) {
			t.Fatalf("expected %s in bucket %s", want, raw)
		}
	}
	if contains(raw, `"userId":"u2"`) {
		t.Fatalf("u1 bucket must not contain u2 records: %s", raw)
	}
}

func TestResetClearsSession(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t, storage.NewMemory())
	mustAdd(t, repo, cpuDraft(1), "u1")
	repo.Reset()
	st := repo.State()
	if len(st.Records) != 0 || st.LastSyncedAt != nil {
		t.Fatalf("expected empty state after reset, got %+v", st)
	}
}

func TestRepositoryPublishesAndRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("broker down")}
	rec := newCountingRecorder()
	repo, _ := newTestRepo(t, storage.NewMemory(), service.WithPublisher(pub), service.WithMetrics(rec))

	id := mustAdd(t, repo, cpuDraft(1), "u1")
	mustAdd(t, repo, cpuDraft(2), "u1")
	if _, err := repo.Delete(ctx, id, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Add(ctx, cpuDraft(1), ""); err == nil {
		t.Fatalf("expected unauthenticated add to fail")
	}

	want := []events.Type{events.RecordAdded, events.RecordAdded, events.RecordDeleted}
	if diff := cmp.Diff(want, pub.types()); diff != "" {
		t.Fatalf("published events mismatch (-want +got):\n%s", diff)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ops["add/ok"] != 2 || rec.ops["add/error"] != 1 || rec.ops["delete/ok"] != 1 {
		t.Fatalf("unexpected operation counts %v", rec.ops)
	}
	if rec.records != 1 || rec.persists != 3 {
		t.Fatalf("expected gauge 1 and 3 persists, got %d and %d", rec.records, rec.persists)
	}
}

func TestIDsAreUniqueEvenWhenGeneratorRepeats(t *testing.T) {
	t.Parallel()
	ids := []string{"dup", "dup", "", "fresh"}
	i := 0
	next := func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
	repo := service.NewRepository(storage.NewMemory(), service.WithIDGenerator(next))
	a := mustAdd(t, repo, cpuDraft(1), "u1")
	b := mustAdd(t, repo, cpuDraft(1), "u1")
	if a != "dup" || b != "fresh" {
		t.Fatalf("expected dup then fresh, got %q %q", a, b)
	}
}
