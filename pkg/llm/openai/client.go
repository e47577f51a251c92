// Package openai provides the OpenAI implementation of llm.Provider.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// Client implements llm.Provider using the OpenAI Chat Completions API.
type Client struct {
	client *openai.Client
	model  string
}

// Config contains configuration for creating an OpenAI client.
// APIKey is required; Model defaults to "gpt-4o"; BaseURL defaults to the
// official endpoint (set it to point at a compatible proxy).
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI provider.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text from a bare prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateChat(ctx, &llm.ChatRequest{Prompt: prompt}, opts...)
}

// GenerateChat generates the reply for one interactive turn. An attached
// image is sent as a base64 data URL content part.
func (c *Client) GenerateChat(ctx context.Context, req *llm.ChatRequest, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Image) > 0 {
		dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(req.Image))
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		}
	} else {
		user.Content = req.Prompt
	}
	messages = append(messages, user)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned from OpenAI API")
	}

	return resp.Choices[0].Message.Content, nil
}

// Capabilities reports vision support; OpenAI models do not honor the
// engine's embedded search directives.
func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{Vision: true}
}

// Close releases resources. The OpenAI client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}
