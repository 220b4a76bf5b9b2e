package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/study-timer/internal/model"
)

// ErrNoMatch is returned by CloseOne when no session satisfies the filter.
var ErrNoMatch = errors.New("storage: no matching session")

// UnavailableError reports a failed call to the underlying persistence engine.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage error %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// Filter selects the session CloseOne operates on. The zero Filter matches
// every session. Among all matches the one with the latest start time wins.
type Filter struct {
	// ID matches the primary identifier. It must be a UUID in any of the
	// forms accepted by uuid.Parse; anything else matches nothing.
	ID string
	// ShadowID matches the redundantly stored string copy of the identifier
	// byte for byte.
	ShadowID string
	// OpenOnly restricts the match to sessions without an end time.
	OpenOnly bool
}

// Matches reports whether s satisfies f. f.ID must already be canonical.
func (f Filter) Matches(s model.Session) bool {
	if f.ID != "" && s.ID != f.ID {
		return false
	}
	if f.ShadowID != "" && s.ShadowID != f.ShadowID {
		return false
	}
	if f.OpenOnly && !s.Open() {
		return false
	}
	return true
}

// canonical returns f with ID in canonical UUID form. ok is false when f.ID
// is set but is not a UUID, in which case nothing can match.
func (f Filter) canonical() (Filter, bool) {
	if f.ID == "" {
		return f, true
	}
	id, ok := CanonicalID(f.ID)
	if !ok {
		return f, false
	}
	f.ID = id
	return f, true
}

// CanonicalID parses id as a UUID and returns its canonical lower-case form.
func CanonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// Store persists study sessions. Every implementation must make CloseOne a
// single atomic read-modify-write so that concurrent callers racing on the
// same filter never both observe the same open session.
type Store interface {
	// Create inserts a new open session and returns it with its assigned id.
	Create(ctx context.Context, subject string, startedAt time.Time) (model.Session, error)
	// Insert stores sess as-is, replacing a session with the same id. It is
	// used to import records created elsewhere.
	Insert(ctx context.Context, sess model.Session) error
	// CloseOne picks the most recently started session matching f, sets its
	// end time to endedAt unless it already has one, and returns the stored
	// record after the update. changed reports whether the end time was
	// written by this call. It returns ErrNoMatch when nothing matches.
	CloseOne(ctx context.Context, f Filter, endedAt time.Time) (s model.Session, changed bool, err error)
	// List returns up to limit sessions, most recently started first.
	List(ctx context.Context, limit int) ([]model.Session, error)
	Close() error
}

// newSession builds a fresh open session with a generated id.
func newSession(subject string, startedAt time.Time) model.Session {
	id := uuid.New().String()
	return model.Session{
		ID:        id,
		ShadowID:  id,
		Subject:   model.CleanSubject(subject),
		StartedAt: startedAt.UTC(),
	}
}
