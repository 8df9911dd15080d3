package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/service"
	"github.com/saadjs/carbon-cli/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by a repository under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("rec-%03d", n)
	}
}

func newTestRepo(t *testing.T, store storage.Store, opts ...service.Option) (*service.Repository, *testClock) {
	t.Helper()
	clock := &testClock{now: fixedNow}
	base := []service.Option{
		service.WithClock(clock.Now),
		service.WithIDGenerator(sequentialIDs()),
		service.WithLocation(time.UTC),
	}
	return service.NewRepository(store, append(base, opts...)...), clock
}

func cpuDraft(co2e float64) model.RecordDraft {
	var form model.Payload
	form.Set("cpu_count", model.NumberValue(2))
	form.Set("provider", model.StringValue("aws"))
	return model.RecordDraft{
		Category: model.CategoryCloudCPU,
		CO2e:     co2e,
		CO2eUnit: "kg",
		FormData: form,
		Source:   "local-formula",
	}
}

func draftFor(cat model.Category, co2e float64) model.RecordDraft {
	return model.RecordDraft{Category: cat, CO2e: co2e, CO2eUnit: "kg"}
}

func mustAdd(t *testing.T, repo *service.Repository, draft model.RecordDraft, owner string) string {
	t.Helper()
	id, err := repo.Add(context.Background(), draft, owner)
	if err != nil {
		t.Fatalf("add record for %s: %v", owner, err)
	}
	return id
}

var errDiskFull = errors.New("disk full")

// flakyStore fails writes while failSet is true.
type flakyStore struct {
	*storage.Memory
	mu      sync.Mutex
	failSet bool
	failGet bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: storage.NewMemory()}
}

func (s *flakyStore) setFailures(set, get bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet, s.failGet = set, get
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.Memory.Set(ctx, key, value)
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return "", false, errDiskFull
	}
	return s.Memory.Get(ctx, key)
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingRecorder tallies operations by name and result.
type countingRecorder struct {
	mu       sync.Mutex
	ops      map[string]int
	records  int
	persists int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int)}
}

func (c *countingRecorder) ObserveOperation(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ops[op+"/"+result]++
}

func (c *countingRecorder) ObservePersist(time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persists++
}

func (c *countingRecorder) SetRecordCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = n
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
