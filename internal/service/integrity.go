package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/storage"
)

type BackupInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

type DoctorReport struct {
	BucketFound      bool `json:"bucket_found"`
	Unreadable       bool `json:"unreadable,omitempty"`
	Records          int  `json:"records"`
	ForeignOwner     int  `json:"foreign_owner"`
	DuplicateIDs     int  `json:"duplicate_ids"`
	InvalidCategory  int  `json:"invalid_category"`
	NegativeQuantity int  `json:"negative_quantity"`
	Removed          int  `json:"removed,omitempty"`
}

func (d DoctorReport) Healthy() bool {
	return !d.Unreadable && d.ForeignOwner == 0 && d.DuplicateIDs == 0 && d.InvalidCategory == 0 && d.NegativeQuantity == 0
}

// RunDoctor inspects ownerID's raw bucket. With fix it rewrites the bucket
// without the offending records and reloads the collection.
func (r *Repository) RunDoctor(ctx context.Context, ownerID string, fix bool) (DoctorReport, error) {
	report := DoctorReport{}
	if strings.TrimSpace(ownerID) == "" {
		return report, fmt.Errorf("doctor: %w", ErrNotAuthenticated)
	}
	raw, ok, err := r.store.Get(ctx, storage.HistoryKey(ownerID))
	if err != nil {
		return report, fmt.Errorf("doctor read bucket: %w: %w", ErrStorageFailure, err)
	}
	if !ok {
		return report, nil
	}
	report.BucketFound = true

	var b bucket
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		r.logger.Warn("doctor found unreadable bucket", zap.String("owner", ownerID), zap.Error(err))
		report.Unreadable = true
		return report, nil
	}
	report.Records = len(b.Records)

	seen := make(map[string]struct{}, len(b.Records))
	clean := make([]model.EmissionRecord, 0, len(b.Records))
	for _, rec := range b.Records {
		bad := false
		if rec.OwnerID != ownerID {
			report.ForeignOwner++
			bad = true
		}
		if _, dup := seen[rec.ID]; dup || rec.ID == "" {
			report.DuplicateIDs++
			bad = true
		}
		if !rec.Category.Valid() {
			report.InvalidCategory++
			bad = true
		}
		if rec.CO2e < 0 {
			report.NegativeQuantity++
			bad = true
		}
		seen[rec.ID] = struct{}{}
		if !bad {
			clean = append(clean, rec)
		}
	}

	if fix && len(clean) != len(b.Records) {
		r.mu.Lock()
		err := r.persistLocked(ctx, ownerID, clean)
		r.mu.Unlock()
		if err != nil {
			return report, fmt.Errorf("doctor fix: %w", err)
		}
		report.Removed = len(b.Records) - len(clean)
		r.Load(ctx, ownerID)
	}
	return report, nil
}

// CreateBackup snapshots ownerID's raw bucket to outPath with a .sha256
// sidecar.
func (r *Repository) CreateBackup(ctx context.Context, ownerID, outPath string) (BackupInfo, error) {
	if strings.TrimSpace(ownerID) == "" {
		return BackupInfo{}, fmt.Errorf("create backup: %w", ErrNotAuthenticated)
	}
	if strings.TrimSpace(outPath) == "" {
		return BackupInfo{}, fmt.Errorf("backup output path is required")
	}
	raw, ok, err := r.store.Get(ctx, storage.HistoryKey(ownerID))
	if err != nil {
		return BackupInfo{}, fmt.Errorf("create backup: %w: %w", ErrStorageFailure, err)
	}
	if !ok {
		return BackupInfo{}, fmt.Errorf("no stored history for owner %q", ownerID)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return BackupInfo{}, fmt.Errorf("create backup directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(raw), 0o600); err != nil {
		return BackupInfo{}, fmt.Errorf("write backup: %w", err)
	}
	checksum := checksumOf([]byte(raw))
	if err := os.WriteFile(outPath+".sha256", []byte(checksum+"\n"), 0o600); err != nil {
		return BackupInfo{}, fmt.Errorf("write checksum file: %w", err)
	}
	st, err := os.Stat(outPath)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("stat backup: %w", err)
	}
	return BackupInfo{Path: outPath, Checksum: checksum, CreatedAt: st.ModTime(), SizeBytes: st.Size()}, nil
}

// RestoreBackup verifies backupPath against its sidecar checksum (when
// present) and that it belongs to ownerID, then overwrites the bucket and
// reloads.
func (r *Repository) RestoreBackup(ctx context.Context, ownerID, backupPath string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("restore backup: %w", ErrNotAuthenticated)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	expected, err := os.ReadFile(backupPath + ".sha256")
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read checksum file: %w", err)
	case strings.TrimSpace(string(expected)) != checksumOf(data):
		return fmt.Errorf("backup checksum mismatch")
	}

	var b bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("restore backup: %w: %v", ErrMalformedInput, err)
	}
	if b.UserID != ownerID {
		return fmt.Errorf("restore backup: bucket belongs to %q, not %q", b.UserID, ownerID)
	}
	if err := r.store.Set(ctx, storage.HistoryKey(ownerID), string(data)); err != nil {
		return fmt.Errorf("restore backup: %w: %w", ErrStorageFailure, err)
	}
	r.Load(ctx, ownerID)
	return nil
}

func ListBackups(dir string) ([]BackupInfo, error) {
	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	out := make([]BackupInfo, 0)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		full := filepath.Join(dir, f.Name())
		st, err := os.Stat(full)
		if err != nil {
			continue
		}
		checksum := ""
		if b, err := os.ReadFile(full + ".sha256"); err == nil {
			checksum = strings.TrimSpace(string(b))
		}
		out = append(out, BackupInfo{Path: full, Checksum: checksum, CreatedAt: st.ModTime(), SizeBytes: st.Size()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// BackupFileName is the default name for a backup of ownerID taken at.
func BackupFileName(ownerID string, at time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, ownerID)
	return fmt.Sprintf("history-%s-%s.json", safe, at.UTC().Format("20060102T150405Z"))
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
