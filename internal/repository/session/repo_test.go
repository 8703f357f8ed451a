package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/domain/usage/plan"
)

const prefix = "tokie:"

func TestLoad_NewSession_SynthesizesAndPersists(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, prefix, plan.Free).WithClock(func() int64 { return 1234 })

	rec, err := repo.Load(context.Background(), "new-session")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SessionID() != "new-session" {
		t.Errorf("expected session id new-session, got %q", rec.SessionID())
	}
	if rec.SessionStart() != 1234 {
		t.Errorf("expected session start 1234, got %d", rec.SessionStart())
	}
	if rec.Plan() != plan.Free {
		t.Errorf("expected free plan, got %q", rec.Plan())
	}
	if rec.MaxTokens() != 14000 {
		t.Errorf("expected max 14000, got %d", rec.MaxTokens())
	}
	if ms.setCalls != 1 {
		t.Errorf("default record must be persisted before returning, got %d writes", ms.setCalls)
	}

	// The persisted record must be loadable again without a new write.
	again, err := repo.Load(context.Background(), "new-session")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.SessionStart() != 1234 {
		t.Errorf("reload changed session start: %d", again.SessionStart())
	}
	if ms.setCalls != 1 {
		t.Errorf("reload must not write, got %d writes", ms.setCalls)
	}
}

func TestLoad_ExistingSession(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, prefix, plan.Free)

	existing := usage.Restore("existing", 42, plan.Plus, 1000, 500)
	if err := repo.Save(context.Background(), existing); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := repo.Load(context.Background(), "existing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.InputTokens() != 1000 || rec.OutputTokens() != 500 || rec.TotalTokens() != 1500 {
		t.Errorf("unexpected counters: in=%d out=%d total=%d",
			rec.InputTokens(), rec.OutputTokens(), rec.TotalTokens())
	}
	if rec.Plan() != plan.Plus || rec.MaxTokens() != 128000 {
		t.Errorf("expected plus/128000, got %q/%d", rec.Plan(), rec.MaxTokens())
	}
}

func TestLoad_PropagatesStorageFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	ms := &mockStore{
		getMultiFn: func(context.Context, []string) (map[string][]byte, error) {
			return nil, storeErr
		},
	}
	repo := New(ms, prefix, plan.Free)

	_, err := repo.Load(context.Background(), "any")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected propagated storage error, got %v", err)
	}
}

func TestSave_WritesMappingAndCurrentTogether(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, prefix, plan.Free)

	rec := usage.Restore("s1", 1, plan.Free, 10, 5)
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ms.setCalls) != 1 {
		t.Fatalf("expected exactly one write call, got %d", len(ms.setCalls))
	}
	keys := ms.setCalls[0]
	if len(keys) != 2 {
		t.Fatalf("expected both logical keys in one write, got %v", keys)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen[prefix+"tokenUsage"] || !seen[prefix+"currentSession"] {
		t.Errorf("write must carry tokenUsage and currentSession, got %v", keys)
	}
}

func TestSave_EmptySessionID_NoWrite(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, prefix, plan.Free)

	rec := usage.New("", 0, plan.Free)
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.setCalls) != 0 {
		t.Errorf("transient record must perform zero persistence calls, got %d", len(ms.setCalls))
	}
}

func TestSave_PreservesOtherSessions(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, prefix, plan.Free)

	a := usage.Restore("a", 1, plan.Free, 10, 0)
	b := usage.Restore("b", 2, plan.Free, 0, 20)
	if err := repo.Save(context.Background(), a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := repo.Save(context.Background(), b); err != nil {
		t.Fatalf("save b: %v", err)
	}

	// Updating a must not touch b's stored state.
	a.AddInput(5)
	if err := repo.Save(context.Background(), a); err != nil {
		t.Fatalf("save a again: %v", err)
	}

	gotB, err := repo.Load(context.Background(), "b")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if gotB.OutputTokens() != 20 || gotB.InputTokens() != 0 {
		t.Errorf("session b mutated by session a's save: in=%d out=%d",
			gotB.InputTokens(), gotB.OutputTokens())
	}

	gotA, err := repo.Load(context.Background(), "a")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	if gotA.InputTokens() != 15 {
		t.Errorf("expected a's input 15, got %d", gotA.InputTokens())
	}
}

func TestCurrentSession_RoundTrip(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, prefix, plan.Free)

	_, ok, err := repo.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no current session in empty store")
	}

	rec := usage.Restore("cur", 7, plan.Plus, 100, 200)
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := repo.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected current session after save")
	}
	if got.SessionID() != "cur" || got.TotalTokens() != 300 {
		t.Errorf("unexpected current session %q total=%d", got.SessionID(), got.TotalTokens())
	}
}

func TestSetCurrentSession_PointerOnly(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, prefix, plan.Free)

	rec := usage.Restore("cur", 7, plan.Free, 1, 2)
	if err := repo.SetCurrentSession(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.setCalls) != 1 || len(ms.setCalls[0]) != 1 || ms.setCalls[0][0] != prefix+"currentSession" {
		t.Errorf("expected single currentSession write, got %v", ms.setCalls)
	}
}

func TestStoredShape_MatchesWireFormat(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, prefix, plan.Plus)

	rec := usage.Restore("wire", 99, plan.Plus, 3, 4)
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	var mapping map[string]map[string]any
	if err := json.Unmarshal(ms.data[prefix+"tokenUsage"], &mapping); err != nil {
		t.Fatalf("stored mapping is not valid JSON: %v", err)
	}
	entry, ok := mapping["wire"]
	if !ok {
		t.Fatal("mapping missing session entry")
	}
	for _, field := range []string{
		"sessionId", "sessionStart", "planType",
		"inputTokens", "outputTokens", "totalTokens", "maxTokens", "syncing",
	} {
		if _, ok := entry[field]; !ok {
			t.Errorf("stored record missing field %q", field)
		}
	}
	if entry["planType"] != "plus" {
		t.Errorf("expected planType plus, got %v", entry["planType"])
	}
}
