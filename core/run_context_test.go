package core

import "testing"

func TestRunContext_EmitEventMergesStateAndArtifacts(t *testing.T) {
	rc, emitCh := newRunContextForTest()
	rc.SetState("foo", "bar")
	rc.AddArtifact("file1")

	if err := rc.EmitEvent(NewEvent(rc.RunID, "agent1")); err != nil {
		t.Fatalf("EmitEvent error: %v", err)
	}

	received := <-emitCh
	if received.Actions.StateDelta["foo"].(string) != "bar" {
		t.Fatalf("state delta missing: %+v", received.Actions)
	}
	if received.Actions.ArtifactDelta["file1"] != 1 {
		t.Fatalf("artifact delta missing: %+v", received.Actions)
	}
	if len(rc.StateDelta) != 0 || len(rc.Artifacts) != 0 {
		t.Fatal("buffers should clear after emit")
	}
}

func TestRunContext_EmitEventStampsBranch(t *testing.T) {
	rc, emitCh := newRunContextForTest()
	branched := rc.WithBranch("root.child")

	if err := branched.EmitEvent(NewEvent(rc.RunID, "agent1")); err != nil {
		t.Fatalf("EmitEvent error: %v", err)
	}

	received := <-emitCh
	if received.Branch == nil || *received.Branch != "root.child" {
		t.Fatalf("expected branch stamped on event, got %+v", received.Branch)
	}
}

func TestRunContext_CommitStateDelta(t *testing.T) {
	rc, _ := newRunContextForTest()
	store := rc.SessionStore.(*mockSessionStore)
	rc.SetState("k1", 123)

	if err := rc.CommitStateDelta(); err != nil {
		t.Fatalf("CommitStateDelta error: %v", err)
	}

	if store.applied[rc.SessionID]["k1"].(int) != 123 {
		t.Fatalf("delta not applied: %+v", store.applied)
	}
	if len(rc.StateDelta) != 0 {
		t.Error("StateDelta should clear after commit")
	}
}

func TestRunContext_CloneIsolation(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.SetState("a", 1)
	rc.AddArtifact("f1")

	clone := rc.Clone()
	if clone.Session != rc.Session {
		t.Error("session pointer should be shared")
	}

	clone.SetState("b", 2)
	if _, exists := rc.StateDelta["b"]; exists {
		t.Error("original should not see clone's staged state")
	}
	if v, _ := clone.GetState("a"); v.(int) != 1 {
		t.Error("clone missing original staged state")
	}
}

func TestRunContext_WithBranch(t *testing.T) {
	rc, _ := newRunContextForTest()
	branched := rc.WithBranch("root.child")
	if branched.Branch != "root.child" {
		t.Errorf("expected branch root.child, got %s", branched.Branch)
	}
	if rc.Branch != "" {
		t.Error("original branch should stay empty")
	}
}

func TestRunContext_ChildContextSharesSessionAndEndFlag(t *testing.T) {
	rc, _ := newRunContextForTest()
	childEmit := make(chan Event, 1)

	child := rc.NewChildContext(childEmit, nil, "root.worker")
	if child.Session != rc.Session {
		t.Error("child should share the session by reference")
	}
	if child.Branch != "root.worker" {
		t.Errorf("expected branch root.worker, got %s", child.Branch)
	}
	if child.CallDepth != rc.CallDepth+1 {
		t.Errorf("expected call depth %d, got %d", rc.CallDepth+1, child.CallDepth)
	}
	if len(child.StateDelta) != 0 {
		t.Error("child should start with empty delta buffer")
	}

	child.EndRun()
	if !rc.Ended() {
		t.Error("end flag should propagate to the parent")
	}
}

func TestRunContext_ChildContextInheritsBranchWhenEmpty(t *testing.T) {
	rc, _ := newRunContextForTest()
	parent := rc.WithBranch("root")

	child := parent.NewChildContext(make(chan Event, 1), nil, "")
	if child.Branch != "root" {
		t.Errorf("expected inherited branch root, got %s", child.Branch)
	}
}

func TestRunContext_GetStatePrefersStagedDelta(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.Session.SetState("k", "persisted")
	rc.SetState("k", "staged")

	v, ok := rc.GetState("k")
	if !ok || v.(string) != "staged" {
		t.Fatalf("expected staged value, got %v", v)
	}
}
