package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	cases := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"0d", 0, false},
		{"banana", 0, true},
		{"-3d", 0, true},
	}
	for _, tc := range cases {
		got, err := parseSince(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseSince(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSince(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseSince(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestHistoryCmdEmpty(t *testing.T) {
	withTestConfig(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"history", "--db", tempDB(t)})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "TOOL") {
		t.Errorf("expected table header, got: %s", buf.String())
	}
}

func TestHistoryCmdBadSince(t *testing.T) {
	withTestConfig(t)

	rootCmd.SetArgs([]string{"history", "--db", tempDB(t), "--since", "soon"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for invalid --since")
	}
	historySince = ""
}
