package resolver_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/resolver"
	"github.com/Tiliavir/study-timer/internal/storage"
)

var t0 = time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *storage.FileStore {
	t.Helper()
	return storage.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestResolveStartThenStopWithoutID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sess, err := store.Create(ctx, "Algebra", t0)
	if err != nil {
		t.Fatal(err)
	}

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(1500*time.Second))))
	res, err := r.Resolve(ctx, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Session.ID != sess.ID {
		t.Errorf("resolved %q, want %q", res.Session.ID, sess.ID)
	}
	if res.Step != "latest" {
		t.Errorf("Step = %q, want latest", res.Step)
	}
	if res.AlreadyClosed {
		t.Error("AlreadyClosed = true, want false")
	}
	if res.DurationMinutes != 25 {
		t.Errorf("DurationMinutes = %v, want 25", res.DurationMinutes)
	}

	list, _ := store.List(ctx, 0)
	if list[0].Open() {
		t.Error("session should be closed in the store")
	}
}

func TestResolveNoSessions(t *testing.T) {
	r := resolver.New(newStore(t))
	for _, raw := range []any{nil, "0b8f4f0e-3b1a-4c55-9d7e-2f4a6f1d9c01", "garbage"} {
		if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, resolver.ErrNotFound) {
			t.Errorf("Resolve(%v) err = %v, want ErrNotFound", raw, err)
		}
	}
}

func TestResolveExplicitIDOpen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	target, _ := store.Create(ctx, "target", t0)
	_, _ = store.Create(ctx, "newer", t0.Add(time.Minute))

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(10*time.Minute))))
	res, err := r.Resolve(ctx, map[string]any{"id": target.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != "primary-open" || res.Session.ID != target.ID {
		t.Errorf("resolved %q via %q, want %q via primary-open", res.Session.Subject, res.Step, target.Subject)
	}
	if res.DurationMinutes != 10 {
		t.Errorf("DurationMinutes = %v, want 10", res.DurationMinutes)
	}
}

func TestResolveExplicitIDAlreadyClosed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sess, _ := store.Create(ctx, "Algebra", t0)
	firstEnd := t0.Add(20 * time.Minute)
	if _, _, err := store.CloseOne(ctx, storage.Filter{ID: sess.ID}, firstEnd); err != nil {
		t.Fatal(err)
	}
	other, _ := store.Create(ctx, "still open", t0.Add(30*time.Minute))

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(time.Hour))))
	res, err := r.Resolve(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != "primary" {
		t.Errorf("Step = %q, want primary", res.Step)
	}
	if !res.AlreadyClosed {
		t.Error("AlreadyClosed = false, want true")
	}
	if !res.EndedAt.Equal(firstEnd) {
		t.Errorf("EndedAt = %v, want unchanged %v", res.EndedAt, firstEnd)
	}
	if res.DurationMinutes != 20 {
		t.Errorf("DurationMinutes = %v, want 20", res.DurationMinutes)
	}

	// The other open session is untouched.
	list, _ := store.List(ctx, 0)
	for _, s := range list {
		if s.ID == other.ID && !s.Open() {
			t.Error("unrelated open session was closed")
		}
	}
}

func TestResolveShadowID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	legacy := model.Session{
		ID:        "0b8f4f0e-3b1a-4c55-9d7e-2f4a6f1d9c01",
		ShadowID:  "65f0c0ffee00000000000001",
		StartedAt: t0,
	}
	if err := store.Insert(ctx, legacy); err != nil {
		t.Fatal(err)
	}
	_, _ = store.Create(ctx, "newer", t0.Add(time.Minute))

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(5*time.Minute))))
	res, err := r.Resolve(ctx, map[string]any{"$oid": legacy.ShadowID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != "shadow" || res.Session.ID != legacy.ID {
		t.Errorf("resolved %q via %q, want legacy via shadow", res.Session.ID, res.Step)
	}
}

func TestResolveStaleIDFallsBackToLatestOpen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	open, _ := store.Create(ctx, "open", t0)

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(time.Minute))))
	res, err := r.Resolve(ctx, "0b8f4f0e-3b1a-4c55-9d7e-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != "latest" || res.Session.ID != open.ID {
		t.Errorf("resolved %q via %q, want open session via latest", res.Session.ID, res.Step)
	}
}

func TestResolveNoOpenClosesMostRecentIdempotently(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sess, _ := store.Create(ctx, "done", t0)
	end := t0.Add(15 * time.Minute)
	if _, _, err := store.CloseOne(ctx, storage.Filter{}, end); err != nil {
		t.Fatal(err)
	}

	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(time.Hour))))
	res, err := r.Resolve(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.ID != sess.ID || !res.AlreadyClosed || !res.EndedAt.Equal(end) {
		t.Errorf("resolution = %+v, want most recent session unchanged", res)
	}
}

func TestResolveClampsNegativeDuration(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if _, err := store.Create(ctx, "future", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	r := resolver.New(store, resolver.WithClock(fixedClock(t0)))
	res, err := r.Resolve(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.DurationMinutes != 0 {
		t.Errorf("DurationMinutes = %v, want 0", res.DurationMinutes)
	}
}

func TestResolveConcurrentSingleOpen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sess, _ := store.Create(ctx, "only", t0)
	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(time.Minute))))

	results := make([]resolver.Resolution, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(ctx, nil)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	closedNow := 0
	for _, res := range results {
		if res.Session.ID != sess.ID {
			t.Errorf("resolved %q, want %q", res.Session.ID, sess.ID)
		}
		if !res.AlreadyClosed {
			closedNow++
		}
	}
	if closedNow != 1 {
		t.Errorf("transitions = %d, want exactly 1", closedNow)
	}
}

func TestResolveConcurrentTwoOpen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, _ = store.Create(ctx, "a", t0)
	_, _ = store.Create(ctx, "b", t0.Add(time.Minute))
	r := resolver.New(store, resolver.WithClock(fixedClock(t0.Add(time.Hour))))

	results := make([]resolver.Resolution, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(ctx, nil)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if results[0].Session.ID == results[1].Session.ID {
		t.Error("both callers closed the same session")
	}
	for _, res := range results {
		if res.AlreadyClosed {
			t.Errorf("session %q reported already closed", res.Session.Subject)
		}
	}
}

type failingStore struct {
	storage.Store
	err error
}

func (f failingStore) CloseOne(context.Context, storage.Filter, time.Time) (model.Session, bool, error) {
	return model.Session{}, false, f.err
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	boom := &storage.UnavailableError{Op: "closing session", Err: errors.New("connection refused")}
	r := resolver.New(failingStore{err: boom})
	_, err := r.Resolve(context.Background(), nil)
	var unavailable *storage.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("err = %v, want *storage.UnavailableError", err)
	}
}

func TestResolveCustomCascade(t *testing.T) {
	var calls []string
	record := func(name string) resolver.Step {
		return resolver.Step{Name: name, Match: func(context.Context, storage.Store, string, time.Time) (*resolver.Closed, error) {
			calls = append(calls, name)
			return nil, nil
		}}
	}
	needsID := resolver.Step{Name: "needs-id", NeedsID: true, Match: func(context.Context, storage.Store, string, time.Time) (*resolver.Closed, error) {
		t.Error("step requiring an id ran without one")
		return nil, nil
	}}
	r := resolver.New(newStore(t), resolver.WithSteps(record("one"), needsID, record("two")))
	if _, err := r.Resolve(context.Background(), nil); !errors.Is(err, resolver.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(calls) != 2 || calls[0] != "one" || calls[1] != "two" {
		t.Errorf("calls = %v, want [one two]", calls)
	}
}

func TestMatchersInIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sess, _ := store.Create(ctx, "x", t0)
	end := t0.Add(time.Minute)

	if c, err := resolver.MatchShadow(ctx, store, "nope", end); err != nil || c != nil {
		t.Errorf("MatchShadow(miss) = %v, %v; want nil, nil", c, err)
	}
	if c, err := resolver.MatchPrimaryOpen(ctx, store, "not-a-uuid", end); err != nil || c != nil {
		t.Errorf("MatchPrimaryOpen(non-uuid) = %v, %v; want nil, nil", c, err)
	}
	c, err := resolver.MatchPrimaryOpen(ctx, store, sess.ID, end)
	if err != nil || c == nil || !c.Changed {
		t.Fatalf("MatchPrimaryOpen = %v, %v; want changed match", c, err)
	}
	if c, err := resolver.MatchPrimaryOpen(ctx, store, sess.ID, end); err != nil || c != nil {
		t.Errorf("MatchPrimaryOpen(closed) = %v, %v; want nil, nil", c, err)
	}
	c, err = resolver.MatchPrimary(ctx, store, sess.ID, end.Add(time.Hour))
	if err != nil || c == nil || c.Changed {
		t.Errorf("MatchPrimary(closed) = %v, %v; want unchanged match", c, err)
	}
}
