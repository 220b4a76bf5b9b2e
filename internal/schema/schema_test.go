package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Tiliavir/study-timer/internal/schema"
)

func props(pairs ...string) []schema.Property {
	var out []schema.Property
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schema.Property{Name: pairs[i], Type: pairs[i+1]})
	}
	return out
}

func TestClassify_StartEndPair(t *testing.T) {
	m, err := schema.Classify(props(
		"Name", "title",
		"Start Time", "date",
		"End Time", "date",
		"Minutes", "number",
	), schema.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	want := map[schema.Role]string{
		schema.RoleTitle:           "Name",
		schema.RoleStartDate:       "Start Time",
		schema.RoleEndDate:         "End Time",
		schema.RoleDurationMinutes: "Minutes",
	}
	for role, name := range want {
		if got := m.Name(role); got != name {
			t.Errorf("%s = %q, want %q", role, got, name)
		}
	}
	if m.Has(schema.RoleDateRange) {
		t.Errorf("date-range should be omitted, got %q", m.Name(schema.RoleDateRange))
	}
	if m.Has(schema.RoleDurationHours) {
		t.Errorf("duration-hours should be unmapped, got %q", m.Name(schema.RoleDurationHours))
	}
}

func TestClassify_SingleDateRange(t *testing.T) {
	m, err := schema.Classify(props("Name", "title", "Date", "date"), schema.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got := m.Name(schema.RoleDateRange); got != "Date" {
		t.Errorf("date-range = %q, want Date", got)
	}
	if m.Has(schema.RoleStartDate) || m.Has(schema.RoleEndDate) {
		t.Errorf("start/end should be unmapped: %v", m)
	}
}

func TestClassify_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   []schema.Property
		opts schema.Options
		want map[schema.Role]string
	}{
		{
			name: "range prefers property named date",
			in:   props("Title", "title", "Logged", "date", "date", "date"),
			want: map[schema.Role]string{schema.RoleDateRange: "date"},
		},
		{
			name: "range falls back to first date",
			in:   props("Title", "title", "When", "date", "Other", "date"),
			want: map[schema.Role]string{schema.RoleDateRange: "When"},
		},
		{
			name: "partial pair is replaced by the range",
			in:   props("Title", "title", "Begin", "date", "Date", "date"),
			want: map[schema.Role]string{schema.RoleDateRange: "Date", schema.RoleStartDate: "", schema.RoleEndDate: ""},
		},
		{
			name: "begin and finish",
			in:   props("Title", "title", "Finish", "date", "Begin", "date"),
			want: map[schema.Role]string{schema.RoleStartDate: "Begin", schema.RoleEndDate: "Finish"},
		},
		{
			name: "minutes and hours",
			in:   props("Title", "title", "Date", "date", "Hours", "number", "Duration (min)", "number"),
			want: map[schema.Role]string{schema.RoleDurationMinutes: "Duration (min)", schema.RoleDurationHours: "Hours"},
		},
		{
			name: "subject preferred over first text",
			in:   props("Title", "title", "Date", "date", "Notes", "rich_text", "Subject", "rich_text"),
			want: map[schema.Role]string{schema.RoleSubjectMirror: "Subject"},
		},
		{
			name: "first text as subject mirror",
			in:   props("Title", "title", "Date", "date", "Notes", "rich_text"),
			want: map[schema.Role]string{schema.RoleSubjectMirror: "Notes"},
		},
		{
			name: "tag by name",
			in:   props("Title", "title", "Date", "date", "Status", "select", "Wallet", "relation"),
			want: map[schema.Role]string{schema.RoleTagRelation: "Wallet"},
		},
		{
			name: "tag override",
			in:   props("Title", "title", "Date", "date", "Course", "select", "Tags", "multi_select"),
			opts: schema.Options{TagProperty: "Course"},
			want: map[schema.Role]string{schema.RoleTagRelation: "Course"},
		},
		{
			name: "tag override with wrong type is ignored",
			in:   props("Title", "title", "Date", "date", "Course", "rich_text", "Tags", "multi_select"),
			opts: schema.Options{TagProperty: "Course"},
			want: map[schema.Role]string{schema.RoleTagRelation: "Tags"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := schema.Classify(tt.in, tt.opts)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			for role, name := range tt.want {
				if got := m.Name(role); got != name {
					t.Errorf("%s = %q, want %q", role, got, name)
				}
			}
		})
	}
}

func TestClassify_ConfigError(t *testing.T) {
	tests := []struct {
		name    string
		in      []schema.Property
		missing []schema.Role
	}{
		{"no title", props("Date", "date"), []schema.Role{schema.RoleTitle}},
		{"no date", props("Name", "title", "Minutes", "number"), []schema.Role{schema.RoleStartDate, schema.RoleEndDate, schema.RoleDateRange}},
		{"empty", nil, []schema.Role{schema.RoleTitle, schema.RoleStartDate, schema.RoleEndDate, schema.RoleDateRange}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Classify(tt.in, schema.Options{})
			var cfgErr *schema.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if len(cfgErr.Missing) != len(tt.missing) {
				t.Fatalf("Missing = %v, want %v", cfgErr.Missing, tt.missing)
			}
			for i := range tt.missing {
				if cfgErr.Missing[i] != tt.missing[i] {
					t.Errorf("Missing[%d] = %s, want %s", i, cfgErr.Missing[i], tt.missing[i])
				}
			}
			if len(cfgErr.Properties) != len(tt.in) {
				t.Errorf("Properties = %v, want %v", cfgErr.Properties, tt.in)
			}
		})
	}
}

func TestClassify_CustomRules(t *testing.T) {
	rules := append([]schema.Rule{}, schema.DefaultRules...)
	rules = append(rules, schema.Rule{Role: schema.RoleTitle, Types: []string{"rich_text"}, Priority: 1})

	m, err := schema.Classify(props("Label", "rich_text", "Date", "date"), schema.Options{Rules: rules})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got := m.Name(schema.RoleTitle); got != "Label" {
		t.Errorf("title = %q, want Label", got)
	}
}

type stubReader struct {
	props []schema.Property
	err   error
	calls int
}

func (s *stubReader) RetrieveSchema(_ context.Context, _ string) ([]schema.Property, error) {
	s.calls++
	return s.props, s.err
}

func TestDiscover(t *testing.T) {
	r := &stubReader{props: props("Name", "title", "Date", "date")}
	m, err := schema.Discover(context.Background(), r, "db", schema.Options{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if r.calls != 1 {
		t.Errorf("RetrieveSchema called %d times, want 1", r.calls)
	}
	if !m.Has(schema.RoleDateRange) {
		t.Error("expected date-range mapping")
	}

	boom := errors.New("boom")
	_, err = schema.Discover(context.Background(), &stubReader{err: boom}, "db", schema.Options{})
	if !errors.Is(err, boom) {
		t.Errorf("Discover error = %v, want wrapped boom", err)
	}
}
