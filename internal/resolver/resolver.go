package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/storage"
	"github.com/Tiliavir/study-timer/internal/timecalc"
)

// ErrNotFound is returned when every cascade step misses, which only happens
// when the store holds no sessions at all.
var ErrNotFound = errors.New("resolver: no session to stop")

// Closed is the outcome of a successful match.
type Closed struct {
	Session model.Session
	// Changed is false when the matched session already had an end time.
	Changed bool
}

// MatchFunc tries to find and close one session for id. It returns nil, nil
// when it finds nothing.
type MatchFunc func(ctx context.Context, store storage.Store, id string, endedAt time.Time) (*Closed, error)

// Step is one named strategy of the resolution cascade.
type Step struct {
	Name string
	// NeedsID skips the step when no identifier was supplied.
	NeedsID bool
	Match   MatchFunc
}

// DefaultCascade is the ordered list of strategies used by New.
var DefaultCascade = []Step{
	{Name: "primary-open", NeedsID: true, Match: MatchPrimaryOpen},
	{Name: "primary", NeedsID: true, Match: MatchPrimary},
	{Name: "shadow", NeedsID: true, Match: MatchShadow},
	{Name: "latest", NeedsID: false, Match: MatchLatest},
}

// MatchPrimaryOpen closes the open session whose primary id equals id.
func MatchPrimaryOpen(ctx context.Context, store storage.Store, id string, endedAt time.Time) (*Closed, error) {
	return closeOne(ctx, store, storage.Filter{ID: id, OpenOnly: true}, endedAt)
}

// MatchPrimary matches the primary id regardless of state. A session that a
// racing or duplicate request already closed is returned unchanged.
func MatchPrimary(ctx context.Context, store storage.Store, id string, endedAt time.Time) (*Closed, error) {
	return closeOne(ctx, store, storage.Filter{ID: id}, endedAt)
}

// MatchShadow matches the stored string copy of the identifier.
func MatchShadow(ctx context.Context, store storage.Store, id string, endedAt time.Time) (*Closed, error) {
	return closeOne(ctx, store, storage.Filter{ShadowID: id}, endedAt)
}

// MatchLatest closes the most recently started open session. With none open
// it falls back to the most recent session overall, setting its end time
// only if it has none.
func MatchLatest(ctx context.Context, store storage.Store, _ string, endedAt time.Time) (*Closed, error) {
	closed, err := closeOne(ctx, store, storage.Filter{OpenOnly: true}, endedAt)
	if err != nil || closed != nil {
		return closed, err
	}
	return closeOne(ctx, store, storage.Filter{}, endedAt)
}

func closeOne(ctx context.Context, store storage.Store, f storage.Filter, endedAt time.Time) (*Closed, error) {
	sess, changed, err := store.CloseOne(ctx, f, endedAt)
	if errors.Is(err, storage.ErrNoMatch) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Closed{Session: sess, Changed: changed}, nil
}

// Resolution describes the session a stop request was resolved to.
type Resolution struct {
	Session         model.Session
	EndedAt         time.Time
	DurationMinutes float64
	// AlreadyClosed is true when the session had been stopped before and
	// was returned without modification.
	AlreadyClosed bool
	// Step names the cascade step that matched.
	Step string
}

// Resolver locates and closes the session a stop request refers to.
type Resolver struct {
	store  storage.Store
	steps  []Step
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSteps replaces the default cascade.
func WithSteps(steps ...Step) Option {
	return func(r *Resolver) { r.steps = steps }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New returns a Resolver over store using DefaultCascade.
func New(store storage.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		steps:  DefaultCascade,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve normalizes raw and runs the cascade until one step matches.
// Store failures abort the cascade and are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, raw any) (Resolution, error) {
	id := Normalize(raw)
	endedAt := r.now().UTC()

	for _, step := range r.steps {
		if step.NeedsID && id == "" {
			continue
		}
		closed, err := step.Match(ctx, r.store, id, endedAt)
		if err != nil {
			return Resolution{}, err
		}
		if closed == nil {
			continue
		}
		if id != "" && !step.NeedsID {
			r.logger.Warn("stop identifier matched no session, closed most recent instead",
				"id", id, "session_id", closed.Session.ID)
		}
		return r.resolution(step.Name, closed), nil
	}
	return Resolution{}, ErrNotFound
}

func (r *Resolver) resolution(step string, closed *Closed) Resolution {
	sess := closed.Session
	end := endTime(sess)
	minutes := timecalc.Minutes(sess.StartedAt, end)
	if minutes < 0 {
		r.logger.Warn("session ends before it starts, clamping duration",
			"session_id", sess.ID, "started_at", sess.StartedAt, "ended_at", end)
		minutes = 0
	}
	return Resolution{
		Session:         sess,
		EndedAt:         end,
		DurationMinutes: minutes,
		AlreadyClosed:   !closed.Changed,
		Step:            step,
	}
}

func endTime(s model.Session) time.Time {
	if s.EndedAt == nil {
		return s.StartedAt
	}
	return *s.EndedAt
}
