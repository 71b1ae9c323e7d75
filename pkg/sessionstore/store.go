// Package sessionstore persists per-service authentication state so drivers
// can act as already-logged-in users across runs. One JSON record per
// service lives under the sessions directory; records expire after the
// configured validity window.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound means no session record exists for the service.
	ErrNotFound = errors.New("session record not found")
	// ErrExpired means a record exists but is older than the validity window.
	ErrExpired = errors.New("session record expired")
	// ErrLocked means another process holds the sessions directory.
	ErrLocked = errors.New("sessions directory is locked by another process")
)

// DefaultValidity is the default session validity window.
const DefaultValidity = 7 * 24 * time.Hour

// Record is one persisted session: the serialized credential/storage blob a
// browser captured for a service, plus when it was saved.
type Record struct {
	Service string          `json:"service"`
	State   json.RawMessage `json:"state"`
	SavedAt time.Time       `json:"saved_at"`
}

// Store persists and restores session records. The orchestrator is the sole
// owner of a service's session during a run; an advisory file lock keeps a
// second process from mutating the same directory.
type Store struct {
	dir      string
	validity time.Duration
	lock     *flock.Flock
	now      func() time.Time
	log      zerolog.Logger
}

// New opens (and locks) a session store rooted at dir.
func New(dir string, validity time.Duration, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".sheetflow", "sessions")
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock sessions directory: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	s := &Store{
		dir:      dir,
		validity: validity,
		lock:     lock,
		now:      time.Now,
		log:      log.With().Str("component", "sessionstore").Logger(),
	}
	s.log.Info().Str("dir", dir).Dur("validity", validity).Msg("Session store opened")
	return s, nil
}

// Save persists a service's state blob, replacing any prior record.
func (s *Store) Save(service string, state json.RawMessage) error {
	if err := validateService(service); err != nil {
		return err
	}

	rec := Record{Service: service, State: state, SavedAt: s.now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	path := s.recordPath(service)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync session file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}

	s.log.Debug().Str("service", service).Int("bytes", len(state)).Msg("Session saved")
	return nil
}

// Restore returns the session record for a service, or ErrNotFound /
// ErrExpired. Expired records are left on disk for CleanupExpired.
func (s *Store) Restore(service string) (*Record, error) {
	if err := validateService(service); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.recordPath(service))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", service, ErrNotFound)
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session file for %s: %w", service, err)
	}
	if !s.valid(rec) {
		return nil, fmt.Errorf("%s saved %s ago: %w",
			service, s.now().Sub(rec.SavedAt).Round(time.Minute), ErrExpired)
	}
	return &rec, nil
}

// CleanupExpired removes every expired record and returns how many were
// deleted.
func (s *Store) CleanupExpired() (int, error) {
	records, err := s.all()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		if s.valid(rec) {
			continue
		}
		if err := os.Remove(s.recordPath(rec.Service)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove expired session %s: %w", rec.Service, err)
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("Expired sessions cleaned up")
	}
	return removed, nil
}

// List returns all stored records, valid or not, sorted by directory order.
func (s *Store) List() ([]Record, error) {
	return s.all()
}

// Valid reports whether a stored record for the service exists and is
// inside the validity window.
func (s *Store) Valid(service string) bool {
	rec, err := s.Restore(service)
	return err == nil && rec != nil
}

// Close releases the directory lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

func (s *Store) all() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn().Str("file", entry.Name()).Err(err).Msg("Skipping unreadable session record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) valid(rec Record) bool {
	return s.now().Sub(rec.SavedAt) < s.validity
}

func (s *Store) recordPath(service string) string {
	return filepath.Join(s.dir, service+".json")
}

func validateService(service string) error {
	if service == "" {
		return errors.New("service name cannot be empty")
	}
	if strings.ContainsAny(service, "/\\") || strings.Contains(service, "..") {
		return fmt.Errorf("invalid service name %q", service)
	}
	return nil
}
