package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/relaycli/relay/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(tool string) model.CapabilityRecord {
	return model.CapabilityRecord{
		Tool:          tool,
		Vendor:        "anthropic",
		Pattern:       model.PatternFlag,
		PromptFlag:    "-p",
		Subcommands:   []string{"config", "mcp"},
		Examples:      []string{tool + ` -p "hi"`},
		SourceVersion: "1.2.3",
		AnalyzedAt:    time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCapabilityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleRecord("claude")
	if err := s.PutCapability(ctx, want); err != nil {
		t.Fatalf("PutCapability: %v", err)
	}

	got, err := s.GetCapability(ctx, "claude")
	if err != nil {
		t.Fatalf("GetCapability: %v", err)
	}
	if got == nil {
		t.Fatal("GetCapability returned nil")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, want)
	}
}

func TestGetCapabilityMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetCapability(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("GetCapability: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestPutCapabilityReplacesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRecord("claude")
	if err := s.PutCapability(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := model.CapabilityRecord{
		Tool:          "claude",
		Pattern:       model.PatternSubcommand,
		SourceVersion: "2.0.0",
		AnalyzedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.PutCapability(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCapability(ctx, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if got.PromptFlag != "" || len(got.Subcommands) != 0 {
		t.Errorf("old fields survived replacement: %+v", got)
	}
	if got.SourceVersion != "2.0.0" {
		t.Errorf("SourceVersion = %q, want 2.0.0", got.SourceVersion)
	}
}

func TestPutCapabilityEmptyTool(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutCapability(context.Background(), model.CapabilityRecord{}); err == nil {
		t.Error("expected error for empty tool name")
	}
}

func TestListCapabilities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, tool := range []string{"gemini", "claude", "codex"} {
		if err := s.PutCapability(ctx, sampleRecord(tool)); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.ListCapabilities(ctx)
	if err != nil {
		t.Fatalf("ListCapabilities: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Tool != "claude" || recs[2].Tool != "gemini" {
		t.Errorf("not ordered by tool: %v %v %v", recs[0].Tool, recs[1].Tool, recs[2].Tool)
	}
}

func TestFailureRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetFailure(ctx, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil failure before write")
	}

	rec := model.FailureRecord{
		Tool:          "claude",
		LastFailure:   time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		CooldownUntil: time.Date(2025, 5, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := s.PutFailure(ctx, rec); err != nil {
		t.Fatalf("PutFailure: %v", err)
	}

	got, err = s.GetFailure(ctx, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if !got.CooldownUntil.Equal(rec.CooldownUntil) {
		t.Errorf("CooldownUntil = %v, want %v", got.CooldownUntil, rec.CooldownUntil)
	}

	// Refresh overwrites in place.
	rec.CooldownUntil = rec.CooldownUntil.Add(time.Hour)
	if err := s.PutFailure(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetFailure(ctx, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if !got.CooldownUntil.Equal(rec.CooldownUntil) {
		t.Errorf("refresh not applied: %v", got.CooldownUntil)
	}
}

func TestAttemptsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	attempts := []model.Attempt{
		{ID: "a1", Tool: "claude", Format: "dialect", Args: []string{"-p", "hi"}, OK: true, Timestamp: now.Add(-time.Hour)},
		{ID: "a2", Tool: "claude", Format: "p-flag", OK: false, ExitCode: 2, Reason: "unknown flag", Timestamp: now.Add(-30 * time.Minute)},
		{ID: "a3", Tool: "codex", Format: "positional", OK: true, Timestamp: now.Add(-10 * time.Minute)},
	}
	for _, a := range attempts {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt %s: %v", a.ID, err)
		}
	}

	list, err := s.ListAttempts(ctx, AttemptOpts{Tool: "claude"})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d claude attempts, want 2", len(list))
	}
	if list[0].ID != "a2" {
		t.Errorf("newest first: got %s", list[0].ID)
	}
	if !reflect.DeepEqual(list[1].Args, []string{"-p", "hi"}) {
		t.Errorf("Args round trip = %v", list[1].Args)
	}

	failed, err := s.ListAttempts(ctx, AttemptOpts{FailOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Reason != "unknown flag" {
		t.Errorf("FailOnly = %+v", failed)
	}

	limited, err := s.ListAttempts(ctx, AttemptOpts{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("Limit ignored: got %d", len(limited))
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalAttempts != 3 || st.RejectedCount != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if len(st.TopTools) == 0 || st.TopTools[0].Name != "claude" {
		t.Errorf("TopTools = %v", st.TopTools)
	}
	if st.Last24h != 3 {
		t.Errorf("Last24h = %d, want 3", st.Last24h)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutCapability(context.Background(), sampleRecord("claude")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopen runs migrations again on the same file.
	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetCapability(context.Background(), "claude")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("record lost across reopen")
	}
}
