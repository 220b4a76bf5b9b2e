package schema

import (
	"regexp"
	"sort"
	"strings"
)

// Rule proposes a property for a role. Rules of the same role are tried by
// ascending Priority; the first one that finds a property wins.
type Rule struct {
	Role     Role
	Types    []string
	Pattern  *regexp.Regexp // nil matches any name
	Exact    string         // case-insensitive exact name; checked instead of Pattern when set
	Priority int
	// Exclude skips properties already bound to these roles.
	Exclude []Role
	// When gates the rule on the roles mapped so far.
	When func(Map) bool
}

var (
	reStart   = regexp.MustCompile(`(?i)start|begin`)
	reEnd     = regexp.MustCompile(`(?i)end|finish`)
	reMinutes = regexp.MustCompile(`(?i)minute|min`)
	reHours   = regexp.MustCompile(`(?i)hour|duration`)
	reTag     = regexp.MustCompile(`(?i)wallet|tag`)
)

func pairIncomplete(m Map) bool { return !m.HasPair() }

// DefaultRules is the classification table for study session records.
var DefaultRules = []Rule{
	{Role: RoleTitle, Types: []string{TypeTitle}},

	{Role: RoleStartDate, Types: []string{TypeDate}, Pattern: reStart},
	{Role: RoleEndDate, Types: []string{TypeDate}, Pattern: reEnd, Exclude: []Role{RoleStartDate}},

	{Role: RoleDateRange, Types: []string{TypeDate}, Exact: "date", When: pairIncomplete},
	{Role: RoleDateRange, Types: []string{TypeDate}, Priority: 1, When: pairIncomplete},

	{Role: RoleDurationMinutes, Types: []string{TypeNumber}, Pattern: reMinutes},
	{Role: RoleDurationHours, Types: []string{TypeNumber}, Pattern: reHours, Exclude: []Role{RoleDurationMinutes}},

	{Role: RoleSubjectMirror, Types: []string{TypeRichText}, Exact: "subject"},
	{Role: RoleSubjectMirror, Types: []string{TypeRichText}, Priority: 1},

	{Role: RoleTagRelation, Types: []string{TypeRelation, TypeSelect, TypeMultiSelect}, Pattern: reTag},
}

func rulesFor(rules []Rule, role Role) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Role == role {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// find returns the first property in declared order that satisfies the rule.
func (r Rule) find(props []Property, m Map) (Property, bool) {
	for _, p := range props {
		if r.matches(p, m) {
			return p, true
		}
	}
	return Property{}, false
}

func (r Rule) matches(p Property, m Map) bool {
	if !containsType(r.Types, p.Type) {
		return false
	}
	for _, ex := range r.Exclude {
		if bound, ok := m[ex]; ok && bound.Name == p.Name {
			return false
		}
	}
	name := strings.TrimSpace(p.Name)
	if r.Exact != "" {
		return strings.EqualFold(name, r.Exact)
	}
	return r.Pattern == nil || r.Pattern.MatchString(name)
}

func containsType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
