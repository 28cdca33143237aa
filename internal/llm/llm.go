// Package llm produces the open-ended log summary with a generative model:
// provider communication, prompt construction, response validation and the
// single repair attempt.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/logcheck/internal/logger"
	"github.com/dshills/logcheck/internal/schema"
)

// ErrInvalidModelOutput is returned when both the initial and repair
// responses fail validation.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// ErrMissingAPIKey is wrapped by provider constructors when the provider's
// API key is not set in the environment.
var ErrMissingAPIKey = errors.New("llm: API key not configured")

// MaxInputChars bounds how much of a log is sent to the model.
const MaxInputChars = 100_000

// DefaultProvider is used when Options.Provider is empty.
const DefaultProvider = "google"

// defaultModels maps a provider to the model used when none is given.
var defaultModels = map[string]string{
	"google":    "gemini-2.5-flash",
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o-mini",
}

const (
	defaultMaxTokens   = 8192
	defaultTemperature = 0.2
)

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a Summarize call. Zero values select the defaults.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Normalize fills unset fields with their defaults.
func (o Options) Normalize() Options {
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	if o.Provider == "" {
		o.Provider = DefaultProvider
	}
	if o.Model == "" {
		o.Model = defaultModels[o.Provider]
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = defaultTemperature
	}
	return o
}

// ValidationError records a single validation failure on an LLM response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Summarize asks the model for the errors, warnings and incomplete
// transactions in text. It never fails: any provider or validation error is
// logged and reported as a single entry in the summary's Errors list.
func Summarize(ctx context.Context, text string, opts Options) schema.AISummary {
	opts = opts.Normalize()
	log := logger.OrDefault(opts.Logger)

	s, err := Analyze(ctx, text, opts)
	if err != nil {
		log.Warn("ai analysis failed", "provider", opts.Provider, "model", opts.Model, "error", err)
		return FailureSummary(opts.Provider, err)
	}
	return *s
}

// FailureSummary is the summary reported in place of a model response.
func FailureSummary(provider string, err error) schema.AISummary {
	msg := "The AI analysis failed. This could be due to a network issue or an API error."
	if errors.Is(err, ErrMissingAPIKey) {
		msg = fmt.Sprintf("The AI analysis failed. The API key for provider %q is not configured.", provider)
	}
	return schema.AISummary{
		Errors:                 []string{msg},
		Warnings:               []string{},
		IncompleteTransactions: []string{},
	}
}

// Analyze builds the prompt, calls the model, validates the response, and
// performs one repair attempt if validation fails.
func Analyze(ctx context.Context, text string, opts Options) (*schema.AISummary, error) {
	opts = opts.Normalize()
	log := logger.OrDefault(opts.Logger)

	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: create provider: %w", err)
	}

	userPrompt := buildUserPrompt(text)
	logger.Trace(log, "llm prompt", "system", systemPrompt, "user_bytes", len(userPrompt))

	raw, err := provider.Complete(ctx, systemPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}

	summary, validationErrs := ValidateResponse(raw)
	if summary != nil && !needsRepair(validationErrs) {
		return summary, nil
	}
	log.Debug("llm response invalid; attempting repair", "errors", len(validationErrs))

	repairPrompt := buildRepairPrompt(userPrompt, raw, validationErrs)
	raw2, err := provider.Complete(ctx, systemPrompt, repairPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: repair complete: %w", err)
	}

	summary2, validationErrs2 := ValidateResponse(raw2)
	if summary2 != nil && !needsRepair(validationErrs2) {
		return summary2, nil
	}
	return nil, ErrInvalidModelOutput
}

// Truncate cuts text to at most MaxInputChars characters.
func Truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxInputChars {
			return text[:i]
		}
		n++
	}
	return text
}

// needsRepair returns true when validation errors include a parse or
// required-field failure that requires a retry.
func needsRepair(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Field == "json_parse" || e.Field == "required_field" {
			return true
		}
	}
	return false
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line, for truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that
// models sometimes wrap around JSON output.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by a character that is
// not a valid JSON escape. Log excerpts quoted by the model (Windows paths,
// regex fragments) often contain these.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// wireSummary distinguishes a missing list from an empty one.
type wireSummary struct {
	Errors                 *[]string `json:"errors"`
	Warnings               *[]string `json:"warnings"`
	IncompleteTransactions *[]string `json:"incompleteTransactions"`
}

// ValidateResponse parses and validates a raw model response. A nil summary
// means the response must be repaired; blank entries are dropped and
// recorded as non-fatal errors.
func ValidateResponse(raw string) (*schema.AISummary, []ValidationError) {
	var errs []ValidationError

	raw = stripMarkdownFences(raw)

	var w wireSummary
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		w = wireSummary{}
		if err2 := json.Unmarshal([]byte(fixInvalidJSONEscapes(raw)), &w); err2 != nil {
			return nil, []ValidationError{{Field: "json_parse", Message: err.Error()}}
		}
	}

	fields := []struct {
		name string
		v    *[]string
	}{
		{"errors", w.Errors},
		{"warnings", w.Warnings},
		{"incompleteTransactions", w.IncompleteTransactions},
	}
	for _, f := range fields {
		if f.v == nil {
			errs = append(errs, ValidationError{Field: "required_field", Message: f.name + " is missing"})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	s := &schema.AISummary{
		Errors:                 compact(*w.Errors, "errors", &errs),
		Warnings:               compact(*w.Warnings, "warnings", &errs),
		IncompleteTransactions: compact(*w.IncompleteTransactions, "incompleteTransactions", &errs),
	}
	return s, errs
}

// compact trims entries and drops blank ones. The result is never nil.
func compact(in []string, field string, errs *[]ValidationError) []string {
	out := make([]string, 0, len(in))
	for i, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "blank entry dropped",
			})
			continue
		}
		out = append(out, s)
	}
	return out
}

const systemPrompt = `You are an expert log file analysis system.
Your task is to thoroughly analyze the log file content you are given and identify three distinct categories of issues:
1. Errors: Find all explicit error messages, stack traces, fatal errors, or messages indicating a definitive failure.
2. Warnings: Find all messages that indicate a potential problem but are not critical failures. This includes deprecation notices, performance warnings, or unusual but non-failing states.
3. Incomplete Transactions: Identify any processes, sessions, handshakes, or data transfers that are initiated but do not have a corresponding success, completion, or termination message within the provided log. For example, a 'session started' without a 'session ended'.

Review the entire log and extract these items. Each item should be a direct quote or a concise summary of one issue. If a category has no items, return an empty array for it.

Output ONLY valid JSON conforming to the schema below. No prose, no markdown, no explanation outside the JSON.

{
  "errors": ["..."],
  "warnings": ["..."],
  "incompleteTransactions": ["..."]
}
`

func buildUserPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Log Content to Analyze:\n\"\"\"\n")
	sb.WriteString(Truncate(text))
	sb.WriteString("\n\"\"\"\n\nProduce the JSON summary now.")
	return sb.String()
}

// buildRepairPrompt includes the original user prompt and the previous
// invalid response so the model has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nPlease output only the corrected JSON conforming to the schema. Do not repeat the error.")
	return sb.String()
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

func defaultNewProvider(providerName, model string) (Provider, error) {
	name := strings.ToLower(providerName)
	if name == "" {
		name = DefaultProvider
	}
	if model == "" {
		model = defaultModels[name]
	}
	switch name {
	case "google":
		return newGoogleProvider(model)
	case "anthropic":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (available: google, anthropic, openai)", providerName)
	}
}

func apiKey(env string) (string, error) {
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%w: %s environment variable not set", ErrMissingAPIKey, env)
	}
	return key, nil
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	key, err := apiKey("ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	client := anthropic.NewClient(option.WithAPIKey(key))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}
