package model

import (
	"testing"
	"time"
)

func TestExecutionPatternValid(t *testing.T) {
	for _, p := range []ExecutionPattern{PatternInteractive, PatternFlag, PatternSubcommand, PatternArgument} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if ExecutionPattern("gui-based").Valid() {
		t.Error("unknown pattern should not be valid")
	}
}

func TestCapabilityRecordClone(t *testing.T) {
	rec := &CapabilityRecord{
		Tool:        "alpha",
		Pattern:     PatternFlag,
		PromptFlag:  "-p",
		Subcommands: []string{"run", "config"},
		Examples:    []string{"alpha -p \"hi\""},
	}

	clone := rec.Clone()
	clone.Subcommands[0] = "changed"
	clone.Metadata = &ToolMetadata{SupportsSkills: true}

	if rec.Subcommands[0] != "run" {
		t.Error("clone shares subcommand slice with original")
	}
	if rec.Metadata != nil {
		t.Error("clone mutated original metadata")
	}
}

func TestCapabilityRecordCloneNil(t *testing.T) {
	var rec *CapabilityRecord
	if rec.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestCapabilityRecordStale(t *testing.T) {
	rec := &CapabilityRecord{SourceVersion: "1.2.3"}
	if rec.Stale("1.2.3") {
		t.Error("matching version should not be stale")
	}
	if !rec.Stale("1.3.0") {
		t.Error("version mismatch should be stale")
	}
}

func TestFailureRecordActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rec  *FailureRecord
		want bool
	}{
		{"nil record", nil, false},
		{"active cooldown", &FailureRecord{CooldownUntil: now.Add(time.Hour)}, true},
		{"expired cooldown", &FailureRecord{CooldownUntil: now.Add(-time.Minute)}, false},
		{"boundary", &FailureRecord{CooldownUntil: now}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Active(now); got != tc.want {
				t.Errorf("Active = %v, want %v", got, tc.want)
			}
		})
	}
}
