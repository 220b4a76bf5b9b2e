// Package tracker orchestrates starting and stopping study sessions.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tiliavir/study-timer/internal/bridge"
	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/resolver"
	"github.com/Tiliavir/study-timer/internal/schema"
	"github.com/Tiliavir/study-timer/internal/storage"
)

// Error codes reported to callers.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeStartFailed = "START_FAILED"
	CodeStopFailed  = "STOP_FAILED"
)

// ErrNotFound means there was no session a stop could refer to.
var ErrNotFound = errors.New("no session found")

// Error carries a caller-facing code next to the cause.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Code returns the caller-facing code of err, or "" if it has none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	DefaultSyncWait  = 5 * time.Second
)

// Syncer mirrors closed sessions to an external destination.
type Syncer interface {
	Sync(ctx context.Context, s model.Session) bridge.Result
	Check(ctx context.Context) (schema.Map, error)
}

// StartResult is returned by Start.
type StartResult struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// StopResult is returned by Stop.
type StopResult struct {
	ID              string        `json:"id"`
	Subject         string        `json:"subject,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         time.Time     `json:"endedAt"`
	DurationMinutes float64       `json:"duration"`
	AlreadyClosed   bool          `json:"alreadyClosed"`
	Step            string        `json:"step"`
	Sync            bridge.Result `json:"sync"`
}

// Service starts and stops sessions.
type Service struct {
	store    storage.Store
	resolver *resolver.Resolver
	syncer   Syncer
	syncWait time.Duration
	now      func() time.Time
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithSyncer enables mirroring of stopped sessions.
func WithSyncer(s Syncer) Option { return func(svc *Service) { svc.syncer = s } }

// WithSyncWait bounds how long Stop waits for the sync result.
func WithSyncWait(d time.Duration) Option { return func(svc *Service) { svc.syncWait = d } }

// WithClock replaces time.Now for Start.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(svc *Service) { svc.logger = l } }

// New creates a Service on top of store and r.
func New(store storage.Store, r *resolver.Resolver, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		resolver: r,
		syncWait: DefaultSyncWait,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Start creates a new open session.
func (s *Service) Start(ctx context.Context, subject string) (StartResult, error) {
	sess, err := s.store.Create(ctx, subject, s.now())
	if err != nil {
		s.logger.Error("start failed", "err", err)
		return StartResult{}, &Error{Code: CodeStartFailed, Err: err}
	}
	s.logger.Info("session started", "session_id", sess.ID, "subject", sess.Subject)
	return StartResult{ID: sess.ID, StartedAt: sess.StartedAt}, nil
}

// Stop closes the session identified by raw (any shape, may be nil) and
// mirrors it. The sync outcome never turns a successful stop into an error.
func (s *Service) Stop(ctx context.Context, raw any) (StopResult, error) {
	res, err := s.resolver.Resolve(ctx, raw)
	if errors.Is(err, resolver.ErrNotFound) {
		return StopResult{}, &Error{Code: CodeNotFound, Err: ErrNotFound}
	}
	if err != nil {
		s.logger.Error("stop failed", "err", err)
		return StopResult{}, &Error{Code: CodeStopFailed, Err: err}
	}

	out := StopResult{
		ID:              res.Session.ID,
		Subject:         res.Session.Subject,
		StartedAt:       res.Session.StartedAt,
		EndedAt:         res.EndedAt,
		DurationMinutes: res.DurationMinutes,
		AlreadyClosed:   res.AlreadyClosed,
		Step:            res.Step,
	}
	s.logger.Info("session stopped", "session_id", out.ID, "step", out.Step,
		"duration_min", out.DurationMinutes, "already_closed", out.AlreadyClosed)

	switch {
	case s.syncer == nil:
		out.Sync = bridge.Skipped(bridge.ReasonNotConfigured)
	case res.AlreadyClosed:
		out.Sync = bridge.Skipped(bridge.ReasonAlreadyClosed)
	default:
		out.Sync = s.syncAndWait(ctx, res.Session)
	}
	return out, nil
}

// syncAndWait runs the push detached from ctx cancellation and waits for it
// up to syncWait.
func (s *Service) syncAndWait(ctx context.Context, sess model.Session) bridge.Result {
	done := make(chan bridge.Result, 1)
	syncCtx := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res := s.syncer.Sync(syncCtx, sess)
		if res.Status == bridge.StatusFailed {
			s.logger.Warn("sync failed", "session_id", sess.ID, "reason", res.Reason)
		}
		done <- res
	}()

	timer := time.NewTimer(s.syncWait)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
		return bridge.Skipped(bridge.ReasonPending)
	case <-ctx.Done():
		return bridge.Skipped(bridge.ReasonPending)
	}
}

// Wait blocks until every sync started by Stop has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// ListRecent returns the most recently started sessions first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.List(ctx, limit)
}

// CheckSync reports how the destination schema maps onto session roles.
func (s *Service) CheckSync(ctx context.Context) (schema.Map, error) {
	if s.syncer == nil {
		return nil, bridge.ErrNotConfigured
	}
	return s.syncer.Check(ctx)
}
