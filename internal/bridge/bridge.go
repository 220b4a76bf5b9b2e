// Package bridge mirrors closed study sessions into a Notion database.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/notion"
	"github.com/Tiliavir/study-timer/internal/schema"
	"github.com/Tiliavir/study-timer/internal/timecalc"
)

// Status is the outcome class of a sync attempt.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reasons used with StatusSkipped.
const (
	ReasonNotConfigured = "not-configured"
	ReasonAlreadyClosed = "already-closed"
	ReasonPending       = "pending"
)

// DefaultTitle labels records of sessions without a subject.
const DefaultTitle = "Study Session"

// ErrNotConfigured is returned by Check when no destination is set.
var ErrNotConfigured = errors.New("sync destination not configured")

// Result is the outcome of a sync attempt. It is never an error; callers log it.
type Result struct {
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	RecordID string `json:"recordId,omitempty"`
}

// Skipped builds a skipped result.
func Skipped(reason string) Result { return Result{Status: StatusSkipped, Reason: reason} }

func failed(stage string, err error) Result {
	return Result{Status: StatusFailed, Reason: fmt.Sprintf("%s: %v", stage, err)}
}

// Client is the part of the Notion API the bridge uses.
type Client interface {
	RetrieveDatabase(ctx context.Context, databaseID string) (notion.Database, error)
	CreatePage(ctx context.Context, databaseID string, properties map[string]any) (string, error)
	FindPageByTitle(ctx context.Context, databaseID, title string) (string, error)
}

// Config selects the destination and tag linking.
type Config struct {
	DatabaseID    string
	TagDatabaseID string
	TagName       string
	TagProperty   string
	DefaultTitle  string
}

// Bridge builds and submits destination records.
type Bridge struct {
	client Client
	cfg    Config
	logger *slog.Logger
}

// New creates a bridge. A nil client leaves the bridge unconfigured.
func New(client Client, cfg Config, logger *slog.Logger) *Bridge {
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = DefaultTitle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{client: client, cfg: cfg, logger: logger}
}

// Configured reports whether a destination is set.
func (b *Bridge) Configured() bool {
	return b != nil && b.client != nil && b.cfg.DatabaseID != ""
}

// RetrieveSchema implements schema.Reader.
func (b *Bridge) RetrieveSchema(ctx context.Context, databaseID string) ([]schema.Property, error) {
	db, err := b.client.RetrieveDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	props := make([]schema.Property, 0, len(db.Properties))
	for _, p := range db.Properties {
		props = append(props, schema.Property{Name: p.Name, Type: p.Type})
	}
	return props, nil
}

// Check discovers and classifies the destination schema.
func (b *Bridge) Check(ctx context.Context) (schema.Map, error) {
	if !b.Configured() {
		return nil, ErrNotConfigured
	}
	return schema.Discover(ctx, b, b.cfg.DatabaseID, schema.Options{TagProperty: b.cfg.TagProperty})
}

// Sync discovers the destination schema and pushes s. It performs a single
// attempt and never returns an error.
func (b *Bridge) Sync(ctx context.Context, s model.Session) Result {
	if !b.Configured() {
		return Skipped(ReasonNotConfigured)
	}
	m, err := b.Check(ctx)
	if err != nil {
		res := failed("discovery", err)
		b.logger.Warn("sync failed", "session_id", s.ID, "reason", res.Reason)
		return res
	}
	return b.Push(ctx, s, m)
}

// Push builds the record for s according to m and submits it.
func (b *Bridge) Push(ctx context.Context, s model.Session, m schema.Map) Result {
	if !b.Configured() {
		return Skipped(ReasonNotConfigured)
	}
	props, err := b.BuildProperties(s, m)
	if err != nil {
		res := failed("mapping", err)
		b.logger.Warn("sync failed", "session_id", s.ID, "reason", res.Reason)
		return res
	}
	if m.Has(schema.RoleTagRelation) {
		b.addTag(ctx, props, m[schema.RoleTagRelation])
	}

	id, err := b.client.CreatePage(ctx, b.cfg.DatabaseID, props)
	if err != nil {
		res := failed("submit", err)
		b.logger.Warn("sync failed", "session_id", s.ID, "reason", res.Reason)
		return res
	}
	b.logger.Info("session synced", "session_id", s.ID, "record", id)
	return Result{Status: StatusOK, RecordID: id}
}

// Title returns the record title for s.
func (b *Bridge) Title(s model.Session) string {
	if subject := strings.TrimSpace(s.Subject); subject != "" {
		return "Study: " + subject
	}
	return b.cfg.DefaultTitle
}

// BuildProperties maps a closed session onto the destination properties.
// The tag link is not included; it needs a network lookup.
func (b *Bridge) BuildProperties(s model.Session, m schema.Map) (map[string]any, error) {
	if s.EndedAt == nil {
		return nil, fmt.Errorf("session %s is still open", s.ID)
	}
	if !m.Has(schema.RoleTitle) {
		return nil, fmt.Errorf("no title property mapped")
	}
	start, end := s.StartedAt, *s.EndedAt

	props := map[string]any{
		m.Name(schema.RoleTitle): notion.TitleValue(b.Title(s)),
	}
	switch {
	case m.HasPair():
		props[m.Name(schema.RoleStartDate)] = notion.DateValue(start)
		props[m.Name(schema.RoleEndDate)] = notion.DateValue(end)
	case m.Has(schema.RoleDateRange):
		props[m.Name(schema.RoleDateRange)] = notion.DateRangeValue(start, end)
	default:
		return nil, fmt.Errorf("no date property mapped")
	}

	minutes := timecalc.Minutes(start, end)
	if minutes < 0 {
		minutes = 0
	}
	if m.Has(schema.RoleDurationMinutes) {
		props[m.Name(schema.RoleDurationMinutes)] = notion.NumberValue(timecalc.Round(minutes, 2))
	}
	if m.Has(schema.RoleDurationHours) {
		props[m.Name(schema.RoleDurationHours)] = notion.NumberValue(timecalc.Round(minutes/60, 3))
	}
	if m.Has(schema.RoleSubjectMirror) && s.Subject != "" {
		props[m.Name(schema.RoleSubjectMirror)] = notion.RichTextValue(s.Subject)
	}
	return props, nil
}

// addTag links the configured tag when it can be resolved. Failures only
// drop the link.
func (b *Bridge) addTag(ctx context.Context, props map[string]any, p schema.Property) {
	if b.cfg.TagName == "" {
		return
	}
	switch p.Type {
	case schema.TypeSelect:
		props[p.Name] = notion.SelectValue(b.cfg.TagName)
	case schema.TypeMultiSelect:
		props[p.Name] = notion.MultiSelectValue(b.cfg.TagName)
	case schema.TypeRelation:
		if b.cfg.TagDatabaseID == "" {
			return
		}
		id, err := b.client.FindPageByTitle(ctx, b.cfg.TagDatabaseID, b.cfg.TagName)
		if err != nil {
			b.logger.Warn("tag lookup failed", "tag", b.cfg.TagName, "err", err)
			return
		}
		if id == "" {
			b.logger.Debug("tag not found", "tag", b.cfg.TagName)
			return
		}
		props[p.Name] = notion.RelationValue(id)
	}
}
