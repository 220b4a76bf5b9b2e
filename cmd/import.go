package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/resolver"
	"github.com/Tiliavir/study-timer/internal/storage"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions from a JSON export",
	Long: `Import reads a JSON array of session documents, for example a database
export with "_id", "subject", "startedAt" and "endedAt". Identifiers that are
not UUIDs get a UUID derived from them, so re-importing the same file updates
instead of duplicating; the original is kept as the shadow id so that stop
requests carrying the old identifier still find the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Print planned imports without writing")
}

// legacySession accepts both camelCase and snake_case exports.
type legacySession struct {
	ID         any        `json:"id"`
	MongoID    any        `json:"_id"`
	Subject    string     `json:"subject"`
	StartedAt  legacyTime `json:"startedAt"`
	StartedAt2 legacyTime `json:"started_at"`
	EndedAt    legacyTime `json:"endedAt"`
	EndedAt2   legacyTime `json:"ended_at"`
}

// legacyTime decodes RFC 3339 strings, {"$date": ...} wrappers and
// millisecond epochs. null leaves it zero.
type legacyTime struct{ time.Time }

func (t *legacyTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var wrapped struct {
		Date json.RawMessage `json:"$date"`
	}
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		return t.UnmarshalJSON(wrapped.Date)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("cannot parse time %q", s)
	}
	t.Time = parsed.UTC()
	return nil
}

// toSession converts an exported document. ok is false for documents
// without a start time.
func (l legacySession) toSession() (model.Session, bool) {
	start := firstTime(l.StartedAt, l.StartedAt2)
	if start.IsZero() {
		return model.Session{}, false
	}
	raw := resolver.Normalize(l.ID)
	if raw == "" {
		raw = resolver.Normalize(l.MongoID)
	}

	s := model.Session{
		Subject:   model.CleanSubject(l.Subject),
		StartedAt: start,
		ShadowID:  raw,
	}
	if id, ok := storage.CanonicalID(raw); ok {
		s.ID = id
	} else {
		s.ID = importID(raw, s)
	}
	if s.ShadowID == "" {
		s.ShadowID = s.ID
	}
	if end := firstTime(l.EndedAt, l.EndedAt2); !end.IsZero() {
		s.EndedAt = &end
	}
	return s, true
}

// importID derives a stable UUID for a document whose id is not a UUID, so
// importing the same export twice upserts instead of duplicating.
func importID(raw string, s model.Session) string {
	key := raw
	if key == "" {
		key = s.StartedAt.Format(time.RFC3339Nano) + "|" + s.Subject
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func firstTime(ts ...legacyTime) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t.Time
		}
	}
	return time.Time{}
}

// parseExport accepts a bare array or a {"sessions": [...]} document.
func parseExport(data []byte) ([]legacySession, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Sessions []legacySession `json:"sessions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Sessions, nil
	}
	var list []legacySession
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(1)
	}
	docs, err := parseExport(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing %s: %v\n", args[0], err)
		return exitCode(1)
	}

	ctx := cmd.Context()
	infra := openInfra(ctx)
	defer infra.Close()

	var imported, skipped, failed int
	for i, doc := range docs {
		s, ok := doc.toSession()
		if !ok {
			fmt.Printf("  – Skipped:  document %d (no start time)\n", i)
			skipped++
			continue
		}
		if !importDryRun {
			if err := infra.Store.Insert(ctx, s); err != nil {
				fmt.Printf("  ! Error importing %s: %v\n", s.ShadowID, err)
				failed++
				continue
			}
		}
		fmt.Printf("  ✓ Imported: %s %s\n", s.StartedAt.Local().Format("2006-01-02 15:04"), describe(s))
		imported++
	}

	fmt.Printf("\nImported: %d  Skipped: %d  Errors: %d\n", imported, skipped, failed)
	if failed > 0 {
		return exitCode(2)
	}
	return nil
}
