// Package identity supplies the active owner id to the history
// repository. It never manages credentials beyond verifying a login token.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/saadjs/carbon-cli/internal/app"
)

// Provider reports the signed-in owner. ok=false means no active session.
type Provider interface {
	CurrentOwnerID() (string, bool)
	CurrentOwnerLabel() (string, bool)
}

// Static is a fixed identity, used by tests and --user overrides.
type Static struct {
	ID    string
	Label string
}

func (s Static) CurrentOwnerID() (string, bool) {
	return s.ID, strings.TrimSpace(s.ID) != ""
}

func (s Static) CurrentOwnerLabel() (string, bool) {
	return s.Label, strings.TrimSpace(s.Label) != ""
}

type Session struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Method     string    `json:"method"`
	SignedInAt time.Time `json:"signed_in_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// SessionFile persists the session as JSON at path.
type SessionFile struct {
	path string
	now  func() time.Time
}

func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path, now: time.Now}
}

func (f *SessionFile) Path() string { return f.path }

// Load returns the stored session. An expired session counts as absent.
func (f *SessionFile) Load() (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(s.UserID) == "" {
		return Session{}, false, nil
	}
	if !s.ExpiresAt.IsZero() && f.now().After(s.ExpiresAt) {
		return Session{}, false, nil
	}
	return s, true, nil
}

func (f *SessionFile) Save(s Session) error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("session user id is required")
	}
	if err := app.EnsureDir(f.path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Delete removes the session file; a missing file is not an error.
func (f *SessionFile) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (f *SessionFile) CurrentOwnerID() (string, bool) {
	s, ok, err := f.Load()
	if err != nil || !ok {
		return "", false
	}
	return s.UserID, true
}

func (f *SessionFile) CurrentOwnerLabel() (string, bool) {
	s, ok, err := f.Load()
	if err != nil || !ok || s.Email == "" {
		return "", false
	}
	return s.Email, true
}
