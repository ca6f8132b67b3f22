// Package oracle abstracts the text-generation model behind a single
// Complete call. The pipeline issues exactly one call per prompt and
// never retries; every caller carries its own deterministic fallback.
package oracle

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client is the text-generation oracle consumed by the planner and the
// narrative synthesizer.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatClient adapts an eino chat model to Client.
type ChatClient struct {
	model model.BaseChatModel
}

func NewChatClient(m model.BaseChatModel) *ChatClient {
	return &ChatClient{model: m}
}

func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("oracle generate: %w", err)
	}
	return msg.Content, nil
}

// Model returns the wrapped chat model for callers that drive it through
// a compose graph instead of plain Complete calls.
func (c *ChatClient) Model() model.BaseChatModel {
	return c.model
}

// Config selects the OpenAI-compatible endpoint.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIClient builds a ChatClient over an OpenAI-compatible endpoint.
func NewOpenAIClient(ctx context.Context, cfg Config) (*ChatClient, error) {
	m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return &ChatClient{model: m}, nil
}
