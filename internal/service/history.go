package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/storage"
)

// SchemaVersion is written into every persisted bucket.
const SchemaVersion = "1.0"

// OperationRecorder receives repository activity. *metrics.Recorder
// satisfies it.
type OperationRecorder interface {
	ObserveOperation(op string, err error)
	ObservePersist(d time.Duration)
	SetRecordCount(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error) {}
func (nopRecorder) ObservePersist(time.Duration)   {}
func (nopRecorder) SetRecordCount(int)             {}

// Repository owns the in-memory emission history for the session. Every
// operation takes the owner id explicitly; nothing reads ambient session
// state.
type Repository struct {
	store   storage.Store
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
	loc     *time.Location
	metrics OperationRecorder
	events  events.Publisher

	mu    sync.Mutex
	state model.HistoryState
	// loaded holds the owners whose stored bucket is reflected in state.
	loaded map[string]struct{}
}

type Option func(*Repository)

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// WithLocation sets the zone used for day and month bucketing.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithMetrics(m OperationRecorder) Option {
	return func(r *Repository) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) {
		if p != nil {
			r.events = p
		}
	}
}

func NewRepository(store storage.Store, opts ...Option) *Repository {
	r := &Repository{
		store:   store,
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
		loc:     time.Local,
		metrics: nopRecorder{},
		events:  events.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// bucket is the persisted document stored under storage.HistoryKey.
type bucket struct {
	Records     []model.EmissionRecord `json:"records"`
	LastUpdated *time.Time             `json:"lastUpdated"`
	Version     string                 `json:"version"`
	UserID      string                 `json:"userId"`
}

// Load hydrates the collection from ownerID's bucket. It never fails:
// a missing owner, read error or undecodable bucket leaves the collection
// empty and is logged.
func (r *Repository) Load(ctx context.Context, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(ownerID) == "" {
		r.logger.Warn("no authenticated owner, cannot load history")
		r.state.Records = nil
		r.state.LastSyncedAt = nil
		r.loaded = nil
		r.metrics.ObserveOperation("load", ErrNotAuthenticated)
		return
	}

	r.state.IsLoading = true
	defer func() { r.state.IsLoading = false }()

	raw, ok, err := r.store.Get(ctx, storage.HistoryKey(ownerID))
	if err != nil {
		r.logger.Error("read history bucket", zap.String("owner", ownerID), zap.Error(err))
		r.state.Records = nil
		r.state.LastSyncedAt = nil
		r.loaded = nil
		r.metrics.ObserveOperation("load", err)
		return
	}
	if !ok {
		r.state.Records = nil
		r.state.LastSyncedAt = nil
		r.loaded = map[string]struct{}{ownerID: {}}
		r.metrics.ObserveOperation("load", nil)
		r.metrics.SetRecordCount(0)
		return
	}

	var b bucket
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		r.logger.Error("decode history bucket", zap.String("owner", ownerID), zap.Error(err))
		r.state.Records = nil
		r.state.LastSyncedAt = nil
		r.loaded = map[string]struct{}{ownerID: {}}
		r.metrics.ObserveOperation("load", err)
		return
	}
	kept := make([]model.EmissionRecord, 0, len(b.Records))
	for _, rec := range b.Records {
		if rec.OwnerID == ownerID {
			kept = append(kept, rec)
		}
	}
	if dropped := len(b.Records) - len(kept); dropped > 0 {
		r.logger.Warn("dropped records owned by another user", zap.String("owner", ownerID), zap.Int("dropped", dropped))
	}
	r.state.Records = kept
	r.state.LastSyncedAt = b.LastUpdated
	r.loaded = map[string]struct{}{ownerID: {}}
	r.metrics.ObserveOperation("load", nil)
	r.metrics.SetRecordCount(len(kept))
	r.logger.Debug("history loaded", zap.String("owner", ownerID), zap.Int("records", len(kept)))
}

// Persist writes ownerID's records to its bucket. A missing owner is a
// logged no-op.
func (r *Repository) Persist(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.TrimSpace(ownerID) == "" {
		r.logger.Warn("no authenticated owner, cannot persist history")
		return nil
	}
	if err := r.hydrateLocked(ctx, ownerID); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return r.persistLocked(ctx, ownerID, r.state.Records)
}

func (r *Repository) persistLocked(ctx context.Context, ownerID string, records []model.EmissionRecord) error {
	start := time.Now()
	now := r.now().UTC()
	b := bucket{
		Records:     filterOwner(records, ownerID),
		LastUpdated: &now,
		Version:     SchemaVersion,
		UserID:      ownerID,
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode history bucket: %w", err)
	}
	if err := r.store.Set(ctx, storage.HistoryKey(ownerID), string(data)); err != nil {
		r.logger.Error("write history bucket", zap.String("owner", ownerID), zap.String("driver", r.store.Driver()), zap.Error(err))
		return fmt.Errorf("persist history: %w: %w", ErrStorageFailure, err)
	}
	r.metrics.ObservePersist(time.Since(start))
	r.state.LastSyncedAt = &now
	return nil
}

// Add validates draft, stamps id, owner and creation time, appends the
// record and persists. The record is durable once Add returns its id.
func (r *Repository) Add(ctx context.Context, draft model.RecordDraft, ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		r.metrics.ObserveOperation("add", ErrNotAuthenticated)
		return "", fmt.Errorf("add record: %w", ErrNotAuthenticated)
	}
	if err := validateDraft(draft); err != nil {
		r.metrics.ObserveOperation("add", err)
		return "", fmt.Errorf("add record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.hydrateLocked(ctx, ownerID); err != nil {
		r.metrics.ObserveOperation("add", err)
		return "", fmt.Errorf("add record: %w", err)
	}

	rec := model.EmissionRecord{
		ID:            r.uniqueIDLocked(),
		OwnerID:       ownerID,
		CreatedAt:     r.now(),
		Category:      draft.Category,
		CategoryLabel: draft.CategoryLabel,
		Label:         strings.TrimSpace(draft.Label),
		CO2e:          draft.CO2e,
		CO2eUnit:      draft.CO2eUnit,
		CO2:           draft.CO2,
		CH4:           draft.CH4,
		N2O:           draft.N2O,
		Details:       draft.Details,
		FormData:      draft.FormData,
		Source:        draft.Source,
		LCAActivity:   draft.LCAActivity,
	}
	if rec.CategoryLabel == "" {
		rec.CategoryLabel = rec.Category.Label()
	}
	if rec.CO2eUnit == "" {
		rec.CO2eUnit = "kg"
	}

	next := append(slices.Clone(r.state.Records), rec)
	if err := r.commitLocked(ctx, ownerID, next); err != nil {
		r.metrics.ObserveOperation("add", err)
		return "", err
	}
	r.metrics.ObserveOperation("add", nil)
	r.publish(ctx, events.Event{
		Type: events.RecordAdded, OwnerID: ownerID, RecordID: rec.ID,
		Category: string(rec.Category), CO2e: rec.CO2e, At: rec.CreatedAt,
	})
	return rec.ID, nil
}

// Delete removes the record matching both id and ownerID. It reports
// whether a record was removed; an unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		r.metrics.ObserveOperation("delete", ErrNotAuthenticated)
		return false, fmt.Errorf("delete record: %w", ErrNotAuthenticated)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.hydrateLocked(ctx, ownerID); err != nil {
		r.metrics.ObserveOperation("delete", err)
		return false, fmt.Errorf("delete record: %w", err)
	}

	idx := slices.IndexFunc(r.state.Records, func(rec model.EmissionRecord) bool {
		return rec.ID == id && rec.OwnerID == ownerID
	})
	if idx < 0 {
		r.metrics.ObserveOperation("delete", nil)
		return false, nil
	}
	removed := r.state.Records[idx]
	next := slices.Delete(slices.Clone(r.state.Records), idx, idx+1)
	if err := r.commitLocked(ctx, ownerID, next); err != nil {
		r.metrics.ObserveOperation("delete", err)
		return false, err
	}
	r.metrics.ObserveOperation("delete", nil)
	r.publish(ctx, events.Event{
		Type: events.RecordDeleted, OwnerID: ownerID, RecordID: removed.ID,
		Category: string(removed.Category), CO2e: removed.CO2e, At: r.now(),
	})
	return true, nil
}

// Clear removes every record owned by ownerID and returns how many went.
func (r *Repository) Clear(ctx context.Context, ownerID string) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		r.metrics.ObserveOperation("clear", ErrNotAuthenticated)
		return 0, fmt.Errorf("clear history: %w", ErrNotAuthenticated)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.hydrateLocked(ctx, ownerID); err != nil {
		r.metrics.ObserveOperation("clear", err)
		return 0, fmt.Errorf("clear history: %w", err)
	}

	next := withoutOwner(r.state.Records, ownerID)
	removed := len(r.state.Records) - len(next)
	if err := r.commitLocked(ctx, ownerID, next); err != nil {
		r.metrics.ObserveOperation("clear", err)
		return 0, err
	}
	r.metrics.ObserveOperation("clear", nil)
	r.publish(ctx, events.Event{Type: events.HistoryCleared, OwnerID: ownerID, Count: removed, At: r.now()})
	return removed, nil
}

// Reset drops all in-memory state, as on logout. Storage is untouched.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = model.HistoryState{}
	r.loaded = nil
	r.metrics.SetRecordCount(0)
}

// State returns a copy of the current history state.
func (r *Repository) State() model.HistoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := model.HistoryState{
		Records:   slices.Clone(r.state.Records),
		IsLoading: r.state.IsLoading,
	}
	if r.state.LastSyncedAt != nil {
		t := *r.state.LastSyncedAt
		out.LastSyncedAt = &t
	}
	return out
}

// Records returns ownerID's records in insertion order.
func (r *Repository) Records(ownerID string) []model.EmissionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterOwner(r.state.Records, ownerID)
}

func (r *Repository) Record(id, ownerID string) (model.EmissionRecord, bool) {
	for _, rec := range r.Records(ownerID) {
		if rec.ID == id {
			return rec, true
		}
	}
	return model.EmissionRecord{}, false
}

func (r *Repository) TotalRecords(ownerID string) int {
	return len(r.Records(ownerID))
}

// hydrateLocked merges ownerID's stored records into memory unless Load
// already did. A read or decode failure leaves state untouched.
func (r *Repository) hydrateLocked(ctx context.Context, ownerID string) error {
	if _, ok := r.loaded[ownerID]; ok {
		return nil
	}
	raw, ok, err := r.store.Get(ctx, storage.HistoryKey(ownerID))
	if err != nil {
		return fmt.Errorf("read history bucket: %w: %w", ErrStorageFailure, err)
	}
	var stored []model.EmissionRecord
	if ok {
		var b bucket
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return fmt.Errorf("decode history bucket: %w: %w", ErrStorageFailure, err)
		}
		stored = filterOwner(b.Records, ownerID)
	}
	r.state.Records = append(withoutOwner(r.state.Records, ownerID), stored...)
	if r.loaded == nil {
		r.loaded = make(map[string]struct{})
	}
	r.loaded[ownerID] = struct{}{}
	return nil
}

// commitLocked swaps in next and persists it. On a persist failure the
// previous collection is restored so the failed write is never visible.
func (r *Repository) commitLocked(ctx context.Context, ownerID string, next []model.EmissionRecord) error {
	prev := r.state.Records
	prevSynced := r.state.LastSyncedAt
	r.state.Records = next
	if err := r.persistLocked(ctx, ownerID, next); err != nil {
		r.state.Records = prev
		r.state.LastSyncedAt = prevSynced
		return err
	}
	r.metrics.SetRecordCount(countOwner(next, ownerID))
	return nil
}

func (r *Repository) uniqueIDLocked() string {
	for {
		id := r.newID()
		if id == "" {
			continue
		}
		if !slices.ContainsFunc(r.state.Records, func(rec model.EmissionRecord) bool { return rec.ID == id }) {
			return id
		}
	}
}

func (r *Repository) publish(ctx context.Context, ev events.Event) {
	if err := r.events.Publish(ctx, ev); err != nil {
		r.logger.Warn("publish history event", zap.String("type", string(ev.Type)), zap.String("owner", ev.OwnerID), zap.Error(err))
	}
}

func validateDraft(d model.RecordDraft) error {
	if !d.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrMalformedInput, d.Category)
	}
	if math.IsNaN(d.CO2e) || math.IsInf(d.CO2e, 0) {
		return fmt.Errorf("%w: co2e must be a finite number", ErrMalformedInput)
	}
	if d.CO2e < 0 {
		return fmt.Errorf("%w: co2e must be >= 0", ErrMalformedInput)
	}
	for name, gas := range map[string]*float64{"co2": d.CO2, "ch4": d.CH4, "n2o": d.N2O} {
		if gas != nil && (math.IsNaN(*gas) || math.IsInf(*gas, 0)) {
			return fmt.Errorf("%w: %s must be a finite number", ErrMalformedInput, name)
		}
	}
	return nil
}
