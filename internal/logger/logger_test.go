package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"Warn", LevelWarning, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSetup_JSON(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	l, err := Setup("debug", "json", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	l.Debug("evaluated", "standard", "general")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if rec["msg"] != "evaluated" || rec["standard"] != "general" {
		t.Errorf("record = %v", rec)
	}
}

func TestSetup_TraceFiltered(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	l, err := Setup("info", "text", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	Trace(l, "hidden")
	if buf.Len() != 0 {
		t.Errorf("trace written at info level: %q", buf.String())
	}

	SetLevel(LevelTrace)
	Trace(l, "shown")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace level not renamed: %q", buf.String())
	}
}

func TestSetup_BadFormat(t *testing.T) {
	if _, err := Setup("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
