package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"
)

// googleProvider implements Provider using the Google Generative AI SDK.
// A new genai.Client is created per Complete call so the caller's context
// governs the connection.
type googleProvider struct {
	apiKey string
	model  string
}

func newGoogleProvider(model string) (Provider, error) {
	key, err := apiKey("GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	return &googleProvider{apiKey: key, model: model}, nil
}

func (p *googleProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: genai client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	maxOut := int32(maxTokens)
	m.MaxOutputTokens = &maxOut
	temp32 := float32(temperature)
	m.Temperature = &temp32
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = summarySchema

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: generate content: %w", err)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
	}
	if len(parts) == 0 {
		return "", errors.New("google: response contained no text content")
	}
	return strings.Join(parts, ""), nil
}

// summarySchema constrains the JSON the model returns.
var summarySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"errors": {
			Type:        genai.TypeArray,
			Description: "Every critical error message, exception, or failure found in the log, one per item.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"warnings": {
			Type:        genai.TypeArray,
			Description: "Every non-critical warning or potential issue found in the log, one per item.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"incompleteTransactions": {
			Type:        genai.TypeArray,
			Description: "Operations started but never completed, resolved, or terminated in the log.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"errors", "warnings", "incompleteTransactions"},
}
