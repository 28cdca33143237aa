package llm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/dshills/logcheck/internal/logger"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	responses []string // returned in order; last entry is repeated if list exhausted
	err       error
	callCount int
	prompts   []string
}

func (m *mockProvider) Complete(_ context.Context, _, user string, _ int, _ float64) (string, error) {
	m.prompts = append(m.prompts, user)
	m.callCount++
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mockProvider: no responses configured")
	}
	idx := m.callCount - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

// installMock replaces NewProvider with a factory returning mp, and restores
// the original after the test.
func installMock(t *testing.T, mp *mockProvider) {
	t.Helper()
	orig := NewProvider
	NewProvider = func(_, _ string) (Provider, error) { return mp, nil }
	t.Cleanup(func() { NewProvider = orig })
}

func testOptions() Options {
	return Options{Provider: "google", Model: "test-model", MaxTokens: 100, Logger: logger.Discard()}
}

const validResponse = `{"errors":["ERROR: disk full"],"warnings":[],"incompleteTransactions":["peer session 7 started but never ended"]}`

func TestValidateResponse_Valid(t *testing.T) {
	s, errs := ValidateResponse(validResponse)
	if s == nil {
		t.Fatalf("expected summary; errs: %v", errs)
	}
	if len(s.Errors) != 1 || len(s.Warnings) != 0 || len(s.IncompleteTransactions) != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Warnings == nil {
		t.Error("empty list must be non-nil")
	}
}

func TestValidateResponse_Fenced(t *testing.T) {
	s, errs := ValidateResponse("```json\n" + validResponse + "\n```")
	if s == nil {
		t.Fatalf("fenced response rejected: %v", errs)
	}
}

func TestValidateResponse_TruncatedFence(t *testing.T) {
	s, errs := ValidateResponse("```json\n" + validResponse)
	if s == nil {
		t.Fatalf("open fence not stripped: %v", errs)
	}
}

func TestValidateResponse_InvalidEscapes(t *testing.T) {
	raw := `{"errors":["failed to open C:\data\log"],"warnings":[],"incompleteTransactions":[]}`
	s, errs := ValidateResponse(raw)
	if s == nil {
		t.Fatalf("escape repair failed: %v", errs)
	}
	if s.Errors[0] != `failed to open C:\data\log` {
		t.Errorf("Errors[0] = %q", s.Errors[0])
	}
}

func TestValidateResponse_InvalidJSON(t *testing.T) {
	s, errs := ValidateResponse("not json")
	if s != nil {
		t.Error("expected nil summary for invalid JSON")
	}
	if len(errs) == 0 || errs[0].Field != "json_parse" {
		t.Errorf("errs = %v, want json_parse", errs)
	}
}

func TestValidateResponse_MissingRequiredFields(t *testing.T) {
	s, errs := ValidateResponse(`{"errors":[]}`)
	if s != nil {
		t.Error("expected nil summary when required fields are missing")
	}
	var missing []string
	for _, e := range errs {
		if e.Field == "required_field" {
			missing = append(missing, e.Message)
		}
	}
	if len(missing) != 2 {
		t.Errorf("required_field errors = %v, want warnings and incompleteTransactions", missing)
	}
}

func TestValidateResponse_BlankEntriesDropped(t *testing.T) {
	s, errs := ValidateResponse(`{"errors":["  ", " x "],"warnings":[],"incompleteTransactions":[]}`)
	if s == nil {
		t.Fatalf("unexpected rejection: %v", errs)
	}
	if len(s.Errors) != 1 || s.Errors[0] != "x" {
		t.Errorf("Errors = %q", s.Errors)
	}
	if needsRepair(errs) {
		t.Error("blank entries must not trigger repair")
	}
}

func TestAnalyze_ValidResponse(t *testing.T) {
	mp := &mockProvider{responses: []string{validResponse}}
	installMock(t, mp)

	s, err := Analyze(context.Background(), "ERROR: disk full", testOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Errors[0] != "ERROR: disk full" {
		t.Errorf("summary = %+v", s)
	}
	if mp.callCount != 1 {
		t.Errorf("callCount = %d, want 1", mp.callCount)
	}
	if !strings.Contains(mp.prompts[0], "ERROR: disk full") {
		t.Error("log content missing from prompt")
	}
}

func TestAnalyze_RepairTriggered(t *testing.T) {
	mp := &mockProvider{responses: []string{"bad json", validResponse}}
	installMock(t, mp)

	if _, err := Analyze(context.Background(), "log", testOptions()); err != nil {
		t.Errorf("expected repair to succeed, got error: %v", err)
	}
	if mp.callCount != 2 {
		t.Errorf("expected 2 provider calls (initial + repair), got %d", mp.callCount)
	}
	if !strings.Contains(mp.prompts[1], "Your previous response was:\nbad json") {
		t.Errorf("repair prompt lacks previous response:\n%s", mp.prompts[1])
	}
}

func TestAnalyze_BothResponsesInvalid(t *testing.T) {
	mp := &mockProvider{responses: []string{"bad json"}}
	installMock(t, mp)

	_, err := Analyze(context.Background(), "log", testOptions())
	if !errors.Is(err, ErrInvalidModelOutput) {
		t.Errorf("err = %v, want ErrInvalidModelOutput", err)
	}
	if mp.callCount != 2 {
		t.Errorf("callCount = %d, want exactly one repair", mp.callCount)
	}
}

func TestSummarize_ProviderError(t *testing.T) {
	mp := &mockProvider{err: errors.New("connection reset")}
	installMock(t, mp)

	s := Summarize(context.Background(), "log", testOptions())
	if len(s.Errors) != 1 || !strings.HasPrefix(s.Errors[0], "The AI analysis failed.") {
		t.Errorf("Errors = %q", s.Errors)
	}
	if s.Warnings == nil || len(s.Warnings) != 0 || s.IncompleteTransactions == nil || len(s.IncompleteTransactions) != 0 {
		t.Errorf("degraded summary = %+v", s)
	}
}

func TestSummarize_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	opts := testOptions()
	opts.Provider = "openai"
	s := Summarize(context.Background(), "log", opts)
	if len(s.Errors) != 1 || !strings.Contains(s.Errors[0], `provider "openai" is not configured`) {
		t.Errorf("Errors = %q", s.Errors)
	}
}

func TestSummarize_UnknownProvider(t *testing.T) {
	opts := testOptions()
	opts.Provider = "watson"
	s := Summarize(context.Background(), "log", opts)
	if len(s.Errors) != 1 {
		t.Errorf("Errors = %q", s.Errors)
	}
}

func TestTruncate(t *testing.T) {
	short := "abc"
	if Truncate(short) != short {
		t.Error("short text altered")
	}
	long := strings.Repeat("é", MaxInputChars+10)
	got := Truncate(long)
	if n := len([]rune(got)); n != MaxInputChars {
		t.Errorf("Truncate kept %d characters, want %d", n, MaxInputChars)
	}
}

func TestOptions_Normalize(t *testing.T) {
	o := Options{}.Normalize()
	if o.Provider != "google" || o.Model != "gemini-2.5-flash" {
		t.Errorf("defaults = %+v", o)
	}
	if o.MaxTokens <= 0 || o.Temperature <= 0 {
		t.Errorf("numeric defaults = %+v", o)
	}
	o = Options{Provider: "Anthropic"}.Normalize()
	if o.Provider != "anthropic" || o.Model == "" {
		t.Errorf("anthropic defaults = %+v", o)
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := map[string]string{
		"{}":                   "{}",
		"```json\n{}\n```":     "{}",
		"~~~\n{}\n~~~":         "{}",
		"```\n{\"a\":1}":       `{"a":1}`,
		"  \n```json\n[]\n```": "[]",
	}
	for in, want := range cases {
		if got := stripMarkdownFences(in); got != want {
			t.Errorf("stripMarkdownFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProviderSchemas_Agree(t *testing.T) {
	js, ok := summaryFormat.Schema.(map[string]any)
	if !ok {
		t.Fatalf("openai schema is %T", summaryFormat.Schema)
	}
	if got := js["required"]; !reflect.DeepEqual(got, summarySchema.Required) {
		t.Errorf("openai required = %v, google required = %v", got, summarySchema.Required)
	}
	props := js["properties"].(map[string]any)
	for name, g := range summarySchema.Properties {
		p, ok := props[name].(map[string]any)
		if !ok {
			t.Errorf("openai schema lacks %q", name)
			continue
		}
		if p["description"] != g.Description {
			t.Errorf("%s: description differs", name)
		}
	}
}
