package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
)

// LangChain adapts a langchaingo model to Client.
type LangChain struct {
	Model     llms.Model
	ModelName string
}

// NewLangChain wraps model; name is reported in audit records.
func NewLangChain(model llms.Model, name string) *LangChain {
	return &LangChain{Model: model, ModelName: name}
}

// NewFromConfig builds a client for the configured provider.
func NewFromConfig(cfg api.LLMConfig) (*LangChain, error) {
	switch cfg.Provider {
	case api.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.apiKey (or OPENAI_API_KEY) is required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return NewLangChain(llm, cfg.Model), nil
	default:
		return nil, fmt.Errorf("provider %s not supported", cfg.Provider)
	}
}

func (l *LangChain) Complete(ctx context.Context, req Request) (Response, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := l.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Response{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, errors.New("model returned no choices")
	}

	choice := resp.Choices[0]
	out := Response{
		Text:       choice.Content,
		Model:      l.ModelName,
		StopReason: choice.StopReason,
	}
	out.PromptTokens = intInfo(choice.GenerationInfo, "PromptTokens")
	out.CompletionTokens = intInfo(choice.GenerationInfo, "CompletionTokens")
	return out, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
