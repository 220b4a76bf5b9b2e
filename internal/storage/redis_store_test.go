package storage

import (
	"testing"
	"time"
)

func TestDecodeCloseReply(t *testing.T) {
	start := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	reply := []any{
		"0b8f4f0e-3b1a-4c55-9d7e-2f4a6f1d9c01",
		"0b8f4f0e-3b1a-4c55-9d7e-2f4a6f1d9c01",
		"Algebra",
		"1772182800000000000",
		"1772184300000000000",
		"1",
	}
	sess, changed, err := decodeCloseReply(reply)
	if err != nil {
		t.Fatalf("decodeCloseReply: %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if sess.Subject != "Algebra" || !sess.StartedAt.Equal(start) {
		t.Errorf("session = %+v", sess)
	}
	if sess.EndedAt == nil || !sess.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", sess.EndedAt, end)
	}
}

func TestDecodeCloseReplyMalformed(t *testing.T) {
	if _, _, err := decodeCloseReply([]any{"a", "b"}); err == nil {
		t.Error("expected error for short reply")
	}
	if _, _, err := decodeCloseReply([]any{"a", "b", "c", "not-a-number", "", "0"}); err == nil {
		t.Error("expected error for bad started_at")
	}
}

func TestDecodeSessionFieldsOpen(t *testing.T) {
	sess, err := decodeSessionFields("id", map[string]string{"started_at": "1772182800000000000", "ended_at": ""})
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Open() {
		t.Error("empty ended_at should decode as open")
	}
}
