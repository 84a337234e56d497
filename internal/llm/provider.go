// Package llm talks to hosted language models for answer grading. Every
// provider turns a single-turn Request into JSON checked against the
// request's schema.
package llm

import (
	"context"
	"encoding/json"
)

// Provider generates one structured reply.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the model requests are sent to.
	ModelID() string
}

// Request is a single-turn prompt.
type Request struct {
	System string
	Prompt string

	// Schema, when set, asks the provider for JSON in that shape and is
	// checked against the reply.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// StopReason says why generation ended.
type StopReason string

const (
	StopEnd       StopReason = "end"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is a provider reply.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string
	Stop    StopReason
}

// Usage counts tokens of one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// finish checks a raw reply and builds the Response every provider returns.
// A truncated reply is an error since it cannot hold complete JSON.
func finish(provider string, req Request, resp *Response) (*Response, error) {
	if resp.Stop == StopMaxTokens {
		return nil, &Error{Kind: KindTruncated, Provider: provider, Content: resp.Content}
	}
	if req.Schema != nil {
		if err := req.Schema.Check(resp.Content); err != nil {
			return nil, &Error{Kind: KindInvalidResponse, Provider: provider, Content: resp.Content, Err: err}
		}
	}
	return resp, nil
}

// modelAliases maps short model names per provider.
var modelAliases = map[string]map[string]string{
	"anthropic": {
		"claude-sonnet": "claude-sonnet-4-20250514",
		"claude-haiku":  "claude-haiku-4-5-20251001",
	},
	"openai": {
		"gpt-4o":      "gpt-4o",
		"gpt-4o-mini": "gpt-4o-mini",
	},
	"gemini": {
		"gemini-flash": "gemini-2.0-flash",
		"gemini-pro":   "gemini-2.0-pro",
	},
}

// resolveModel expands an alias. Unknown names are used as model ids.
func resolveModel(provider, name string) string {
	if id, ok := modelAliases[provider][name]; ok {
		return id
	}
	return name
}
