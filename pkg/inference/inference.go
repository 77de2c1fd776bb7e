// Package inference is the narrow boundary to language-model providers.
package inference

import (
	"context"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
)

// Request is one completion request.
type Request struct {
	Role         string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Response is the provider's answer plus whatever metadata it reported.
type Response struct {
	Text             string
	Model            string
	StopReason       string
	PromptTokens     int
	CompletionTokens int
}

// Client completes prompts. Implementations must not retry internally.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// AuditRecord derives the llm_call evidence payload for a request/response pair.
// err may be non-nil, in which case resp is typically empty.
func AuditRecord(req Request, resp Response, err error, took time.Duration) evidence.LLMCall {
	rec := evidence.LLMCall{
		Role:             req.Role,
		Model:            resp.Model,
		SystemPrompt:     req.SystemPrompt,
		Prompt:           req.Prompt,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		Response:         resp.Text,
		ResponseChars:    len(resp.Text),
		StopReason:       resp.StopReason,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		DurationMs:       took.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
