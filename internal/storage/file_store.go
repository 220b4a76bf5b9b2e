package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Tiliavir/study-timer/internal/model"
)

// FileStore keeps all sessions in a single human-readable JSON file. Every
// operation holds an exclusive advisory lock on a sidecar ".lock" file from
// load to save, so a server and one-shot CLI commands can share the file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the JSON file at path. The file is
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// lock serializes callers in this process and, through the sidecar lock
// file, in every other process using the same path.
func (s *FileStore) lock() (func(), error) {
	s.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.mu.Unlock()
		return nil, unavailable("creating directories", err)
	}
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		s.mu.Unlock()
		return nil, unavailable("opening lock file", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		s.mu.Unlock()
		return nil, unavailable("locking "+s.path, err)
	}
	return func() {
		_ = unlockFile(f)
		_ = f.Close()
		s.mu.Unlock()
	}, nil
}

// load reads the session file. Returns an empty SessionFile if not found.
func (s *FileStore) load() (model.SessionFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.SessionFile{Sessions: []model.Session{}}, nil
	}
	if err != nil {
		return model.SessionFile{}, unavailable("reading "+s.path, err)
	}

	var sf model.SessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		// Back up corrupt file and abort.
		backupPath := s.path + ".corrupt"
		_ = os.Rename(s.path, backupPath)
		return model.SessionFile{}, unavailable("reading "+s.path,
			fmt.Errorf("corrupt JSON (backed up to %s): %w", backupPath, err))
	}
	return sf, nil
}

// save atomically writes the session file.
func (s *FileStore) save(sf model.SessionFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return unavailable("creating directories", err)
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return unavailable("marshalling JSON", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return unavailable("writing temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return unavailable("renaming temp file", err)
	}
	return nil
}

// Create appends a new open session.
func (s *FileStore) Create(_ context.Context, subject string, startedAt time.Time) (model.Session, error) {
	unlock, err := s.lock()
	if err != nil {
		return model.Session{}, err
	}
	defer unlock()

	sf, err := s.load()
	if err != nil {
		return model.Session{}, err
	}
	sess := newSession(subject, startedAt)
	sf.Sessions = append(sf.Sessions, sess)
	if err := s.save(sf); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Insert implements Store.
func (s *FileStore) Insert(_ context.Context, sess model.Session) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}
	for i, e := range sf.Sessions {
		if e.ID == sess.ID {
			sf.Sessions[i] = sess
			return s.save(sf)
		}
	}
	sf.Sessions = append(sf.Sessions, sess)
	return s.save(sf)
}

// CloseOne implements Store.
func (s *FileStore) CloseOne(_ context.Context, f Filter, endedAt time.Time) (model.Session, bool, error) {
	f, ok := f.canonical()
	if !ok {
		return model.Session{}, false, ErrNoMatch
	}

	unlock, err := s.lock()
	if err != nil {
		return model.Session{}, false, err
	}
	defer unlock()

	sf, err := s.load()
	if err != nil {
		return model.Session{}, false, err
	}

	idx := latestMatch(sf.Sessions, f)
	if idx < 0 {
		return model.Session{}, false, ErrNoMatch
	}
	sess := &sf.Sessions[idx]
	if !sess.Open() {
		return *sess, false, nil
	}

	end := endedAt.UTC()
	sess.EndedAt = &end
	if err := s.save(sf); err != nil {
		return model.Session{}, false, err
	}
	return *sess, true, nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context, limit int) ([]model.Session, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	sf, err := s.load()
	if err != nil {
		return nil, err
	}
	sessions := sf.Sessions
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// latestMatch returns the index of the most recently started session that
// matches f, or -1.
func latestMatch(sessions []model.Session, f Filter) int {
	best := -1
	for i, e := range sessions {
		if !f.Matches(e) {
			continue
		}
		if best < 0 || e.StartedAt.After(sessions[best].StartedAt) {
			best = i
		}
	}
	return best
}
