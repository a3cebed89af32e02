package memory

import "testing"

func TestInMemoryStore_PutAndGet(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Put("sess-1", map[string]any{"topic": "go"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put("sess-1", map[string]any{"lang": "en"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get("sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["topic"] != "go" || got["lang"] != "en" {
		t.Fatalf("unexpected memory: %v", got)
	}
}

func TestInMemoryStore_GetIsIsolatedCopy(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Put("sess-1", map[string]any{"k": "v"})

	got, _ := store.Get("sess-1")
	got["k"] = "mutated"

	again, _ := store.Get("sess-1")
	if again["k"] != "v" {
		t.Fatalf("store leaked internal map: %v", again)
	}
}

func TestInMemoryStore_SearchMatchesSubstring(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Store("sess-1", "The user prefers dark mode", nil)
	_ = store.Store("sess-1", "The user lives in Berlin", map[string]any{"kind": "fact"})
	_ = store.Store("sess-2", "Berlin is unrelated here", nil)

	results, err := store.Search("sess-1", "berlin", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "The user lives in Berlin" {
		t.Fatalf("unexpected content: %s", results[0].Content)
	}
	if results[0].Score != 1.0 {
		t.Fatalf("unexpected score: %f", results[0].Score)
	}
	if results[0].Metadata["kind"] != "fact" {
		t.Fatalf("metadata not preserved: %v", results[0].Metadata)
	}
}

func TestInMemoryStore_SearchNewestFirstAndLimit(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Store("sess-1", "note one", nil)
	_ = store.Store("sess-1", "note two", nil)
	_ = store.Store("sess-1", "note three", nil)

	results, err := store.Search("sess-1", "note", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "note three" || results[1].Content != "note two" {
		t.Fatalf("unexpected order: %v", results)
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Store("sess-1", "remove me", nil)

	results, _ := store.Search("sess-1", "remove", 1)
	if len(results) != 1 {
		t.Fatal("expected stored snippet")
	}

	if err := store.Delete("sess-1", results[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	results, _ = store.Search("sess-1", "remove", 1)
	if len(results) != 0 {
		t.Fatal("snippet still present after delete")
	}

	if err := store.Delete("sess-1", "mem_999"); err == nil {
		t.Fatal("expected error deleting unknown memory")
	}
}
