package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiProvider implements Provider with chat completions constrained to
// the summary JSON schema.
type openaiProvider struct {
	client openai.Client
	model  shared.ChatModel
}

func newOpenAIProvider(model string) (Provider, error) {
	key, err := apiKey("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return &openaiProvider{
		client: openai.NewClient(option.WithAPIKey(key)),
		model:  shared.ChatModel(model),
	}, nil
}

func (p *openaiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: summaryFormat},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: log summary: %w", err)
	}
	for _, choice := range resp.Choices {
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("openai: model refused: %s", choice.Message.Refusal)
		}
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", errors.New("openai: no summary in response")
}

// summaryFormat mirrors summarySchema for strict structured output. Strict
// mode requires every property listed and no additional ones.
var summaryFormat = shared.ResponseFormatJSONSchemaJSONSchemaParam{
	Name:        "log_summary",
	Description: openai.String("Errors, warnings and incomplete transactions found in a client log."),
	Strict:      openai.Bool(true),
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"errors":                 stringList("Every critical error message, exception, or failure found in the log, one per item."),
			"warnings":               stringList("Every non-critical warning or potential issue found in the log, one per item."),
			"incompleteTransactions": stringList("Operations started but never completed, resolved, or terminated in the log."),
		},
		"required":             []string{"errors", "warnings", "incompleteTransactions"},
		"additionalProperties": false,
	},
}

func stringList(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": "string"},
	}
}
