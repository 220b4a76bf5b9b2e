package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSubjectLen is the maximum subject length in runes.
const MaxSubjectLen = 200

// Session represents a single timed study interval.
type Session struct {
	ID        string     `json:"id"`
	ShadowID  string     `json:"shadow_id"`
	Subject   string     `json:"subject"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// Open reports whether the session has not been stopped yet.
func (s Session) Open() bool {
	return s.EndedAt == nil
}

// SessionFile is the top-level structure of the JSON session file.
type SessionFile struct {
	Sessions []Session `json:"sessions"`
}

// CleanSubject trims the subject and truncates it to MaxSubjectLen runes.
func CleanSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if utf8.RuneCountInString(subject) <= MaxSubjectLen {
		return subject
	}
	runes := []rune(subject)
	return strings.TrimSpace(string(runes[:MaxSubjectLen]))
}
