// Package schema classifies the properties of a sync destination into the
// roles a study session record needs.
package schema

import (
	"context"
	"fmt"
	"strings"
)

// Role is the semantic purpose of a destination property.
type Role string

const (
	RoleTitle           Role = "title"
	RoleStartDate       Role = "start-date"
	RoleEndDate         Role = "end-date"
	RoleDateRange       Role = "date-range"
	RoleDurationMinutes Role = "duration-minutes"
	RoleDurationHours   Role = "duration-hours"
	RoleSubjectMirror   Role = "subject-mirror"
	RoleTagRelation     Role = "tag-relation"
)

// Roles lists every role in classification order.
var Roles = []Role{
	RoleTitle,
	RoleStartDate,
	RoleEndDate,
	RoleDateRange,
	RoleDurationMinutes,
	RoleDurationHours,
	RoleSubjectMirror,
	RoleTagRelation,
}

// Declared property types understood by the mapper.
const (
	TypeTitle       = "title"
	TypeDate        = "date"
	TypeNumber      = "number"
	TypeRichText    = "rich_text"
	TypeRelation    = "relation"
	TypeSelect      = "select"
	TypeMultiSelect = "multi_select"
)

// Property is one destination property as declared by its schema.
type Property struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (p Property) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Type)
}

// Map binds roles to destination properties.
type Map map[Role]Property

// Has reports whether role is mapped.
func (m Map) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

// Name returns the property name bound to role, or "".
func (m Map) Name(role Role) string {
	return m[role].Name
}

// HasPair reports whether both start and end date roles are mapped.
func (m Map) HasPair() bool {
	return m.Has(RoleStartDate) && m.Has(RoleEndDate)
}

// ConfigError reports a destination that lacks a mandatory role.
type ConfigError struct {
	Missing    []Role     `json:"missing"`
	Properties []Property `json:"properties"`
}

func (e *ConfigError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		missing[i] = string(r)
	}
	return fmt.Sprintf("destination schema is missing %s (found %d properties)",
		strings.Join(missing, ", "), len(e.Properties))
}

// Options tunes classification.
type Options struct {
	// TagProperty names the property to use as tag-relation, overriding the
	// name heuristic.
	TagProperty string
	// Rules replaces DefaultRules when non-nil.
	Rules []Rule
}

// Reader reads a destination's property schema in declared order.
type Reader interface {
	RetrieveSchema(ctx context.Context, destinationID string) ([]Property, error)
}

// Discover reads the schema of destinationID once and classifies it.
func Discover(ctx context.Context, r Reader, destinationID string, opts Options) (Map, error) {
	props, err := r.RetrieveSchema(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("reading schema of %s: %w", destinationID, err)
	}
	return Classify(props, opts)
}

// Classify applies the rule table to props. It fails with *ConfigError when
// no title or no usable date form is found.
func Classify(props []Property, opts Options) (Map, error) {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules
	}

	m := Map{}
	if opts.TagProperty != "" {
		for _, p := range props {
			if p.Name == opts.TagProperty && isTagType(p.Type) {
				m[RoleTagRelation] = p
				break
			}
		}
	}

	for _, role := range Roles {
		if m.Has(role) {
			continue
		}
		for _, rule := range rulesFor(rules, role) {
			if rule.When != nil && !rule.When(m) {
				continue
			}
			if p, ok := rule.find(props, m); ok {
				m[role] = p
				break
			}
		}
	}

	// A range replaces any partial pair so there is exactly one date form.
	if m.Has(RoleDateRange) {
		delete(m, RoleStartDate)
		delete(m, RoleEndDate)
	}

	var missing []Role
	if !m.Has(RoleTitle) {
		missing = append(missing, RoleTitle)
	}
	if !m.HasPair() && !m.Has(RoleDateRange) {
		missing = append(missing, RoleStartDate, RoleEndDate, RoleDateRange)
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Missing: missing, Properties: props}
	}
	return m, nil
}

func isTagType(t string) bool {
	return t == TypeRelation || t == TypeSelect || t == TypeMultiSelect
}
