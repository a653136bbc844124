package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	srv := httptest.NewServer(New(st, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func sampleRecord(tool string) model.CapabilityRecord {
	return model.CapabilityRecord{
		Tool:               tool,
		Vendor:             "anthropic",
		Pattern:            model.PatternFlag,
		NonInteractiveFlag: "--print",
		Subcommands:        []string{"mcp", "config"},
		Examples:           []string{tool + ` -p "fix the bug"`},
		SourceVersion:      "1.2.3",
		AnalyzedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCapabilityRoundTripOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := store.NewRemote(srv.URL)
	ctx := context.Background()

	rec := sampleRecord("claude")
	if err := remote.PutCapability(ctx, rec); err != nil {
		t.Fatalf("PutCapability: %v", err)
	}

	got, err := remote.GetCapability(ctx, "claude")
	if err != nil {
		t.Fatalf("GetCapability: %v", err)
	}
	if got == nil {
		t.Fatal("GetCapability returned nil for stored record")
	}
	if !got.AnalyzedAt.Equal(rec.AnalyzedAt) {
		t.Errorf("AnalyzedAt = %v, want %v", got.AnalyzedAt, rec.AnalyzedAt)
	}
	got.AnalyzedAt = rec.AnalyzedAt
	if !reflect.DeepEqual(*got, rec) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", *got, rec)
	}
}

func TestGetCapabilityMissing(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := store.NewRemote(srv.URL)

	got, err := remote.GetCapability(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetCapability: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestListCapabilitiesEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := store.NewRemote(srv.URL)

	recs, err := remote.ListCapabilities(context.Background())
	if err != nil {
		t.Fatalf("ListCapabilities: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty list, got %d records", len(recs))
	}
}

func TestPutCapabilityToolMismatch(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(sampleRecord("codex"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/capabilities/claude", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFailureRoundTripOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := store.NewRemote(srv.URL)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := model.FailureRecord{
		Tool:          "gemini",
		LastFailure:   now,
		CooldownUntil: now.Add(time.Hour),
	}
	if err := remote.PutFailure(ctx, rec); err != nil {
		t.Fatalf("PutFailure: %v", err)
	}

	got, err := remote.GetFailure(ctx, "gemini")
	if err != nil {
		t.Fatalf("GetFailure: %v", err)
	}
	if got == nil {
		t.Fatal("GetFailure returned nil")
	}
	if !got.CooldownUntil.Equal(rec.CooldownUntil) {
		t.Errorf("CooldownUntil = %v, want %v", got.CooldownUntil, rec.CooldownUntil)
	}

	missing, err := remote.GetFailure(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetFailure missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing failure, got %+v", missing)
	}
}

func TestAttemptsAndStatsOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := store.NewRemote(srv.URL)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	attempts := []model.Attempt{
		{ID: "a1", Tool: "claude", Format: "dialect", OK: true, ExitCode: 0, DurationMS: 1200, Timestamp: base},
		{ID: "a2", Tool: "codex", Format: "positional", OK: false, ExitCode: 2, Reason: "unknown flag", DurationMS: 300, Timestamp: base.Add(time.Minute)},
		{ID: "a3", Tool: "claude", Format: "dialect", OK: true, ExitCode: 0, DurationMS: 900, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, a := range attempts {
		if err := remote.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt %s: %v", a.ID, err)
		}
	}

	got, err := remote.ListAttempts(ctx, store.AttemptOpts{})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListAttempts returned %d attempts, want 3", len(got))
	}
	if got[0].ID != "a3" {
		t.Errorf("newest-first order violated: first is %s", got[0].ID)
	}

	failed, err := remote.ListAttempts(ctx, store.AttemptOpts{FailOnly: true})
	if err != nil {
		t.Fatalf("ListAttempts failed-only: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "a2" {
		t.Errorf("failed-only = %+v, want just a2", failed)
	}

	limited, err := remote.ListAttempts(ctx, store.AttemptOpts{Tool: "claude", Limit: 1})
	if err != nil {
		t.Fatalf("ListAttempts limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Tool != "claude" {
		t.Errorf("tool-filtered limit 1 = %+v", limited)
	}

	stats, err := remote.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", stats.TotalAttempts)
	}
	if stats.RejectedCount != 1 {
		t.Errorf("RejectedCount = %d, want 1", stats.RejectedCount)
	}
}

func TestListAttemptsBadQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/attempts?limit=banana")
	if err != nil {
		t.Fatalf("GET attempts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
