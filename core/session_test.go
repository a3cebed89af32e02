package core

import "testing"

func TestSession_MergeStateAndClone(t *testing.T) {
	s := NewSession("s1", "test-app", "test-user")

	s.MergeState(map[string]any{"a": 1, "b": "x"})
	if v, ok := s.GetState("a"); !ok || v.(int) != 1 {
		t.Fatalf("state not applied: %+v", s.State)
	}

	clone := s.Clone()
	if clone == s {
		t.Error("clone should be a different pointer")
	}

	clone.SetState("c", 2)
	if _, exists := s.GetState("c"); exists {
		t.Error("original should not have clone's new key")
	}
}

func TestSession_MergeStateLastWriteWins(t *testing.T) {
	s := NewSession("s1", "test-app", "test-user")
	s.MergeState(map[string]any{"k": "first"})
	s.MergeState(map[string]any{"k": "second"})

	v, _ := s.GetState("k")
	if v.(string) != "second" {
		t.Fatalf("expected last write to win, got %v", v)
	}
}

func TestSession_AddEventAndHistory(t *testing.T) {
	s := NewSession("s2", "test-app", "test-user")
	s.AddEvent(NewMessageEvent("assistant", "hello"))
	s.AddEvent(NewUserMessageEvent("run-1", "hi"))

	all := s.GetEvents()
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}

	orig := all[0].Author
	all[0].Author = "changed"
	if s.GetEvents()[0].Author != orig {
		t.Error("events slice should be copied on read")
	}

	history := s.GetConversationHistory()
	foundUser := false
	for _, hev := range history {
		if hev.Content != nil && hev.Content.Role == "user" {
			foundUser = true
		}
	}
	if !foundUser {
		t.Error("expected user event in history")
	}
}

func TestSession_HistoryExcludesPartials(t *testing.T) {
	s := NewSession("s3", "test-app", "test-user")

	partial := true
	chunk := NewMessageEvent("assistant", "hel")
	chunk.Partial = &partial
	s.AddEvent(chunk)
	s.AddEvent(NewMessageEvent("assistant", "hello"))

	for _, hev := range s.GetConversationHistory() {
		if hev.IsPartial() {
			t.Fatal("partial events must not appear in conversation history")
		}
	}
}
