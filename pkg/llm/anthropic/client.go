// Package anthropic provides the Anthropic Claude implementation of
// llm.Provider, built on the official Go SDK.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// Client implements llm.Provider using the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	model  string
}

// Config contains configuration for creating an Anthropic client.
// APIKey is required; Model defaults to "claude-sonnet-4-5".
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new Anthropic provider.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Generate generates text from a bare prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateChat(ctx, &llm.ChatRequest{Prompt: prompt}, opts...)
}

// GenerateChat generates the reply for one interactive turn. The system
// instruction goes into the Messages API system field; an attached image is
// sent as a base64 image block alongside the prompt.
func (c *Client) GenerateChat(ctx context.Context, req *llm.ChatRequest, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var messages []anthropic.MessageParam
	for _, msg := range req.History {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	userBlocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	if len(req.Image) > 0 {
		data := base64.StdEncoding.EncodeToString(req.Image)
		userBlocks = append(userBlocks, anthropic.NewImageBlockBase64("image/jpeg", data))
	}
	messages = append(messages, anthropic.NewUserMessage(userBlocks...))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(options.MaxTokens),
		Temperature: anthropic.Float(options.Temperature),
		TopP:        anthropic.Float(options.TopP),
		Messages:    messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(options.Stop) > 0 {
		params.StopSequences = options.Stop
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("llm generation failed: no text content returned from Anthropic API")
	}

	return sb.String(), nil
}

// Capabilities reports vision support.
func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{Vision: true}
}

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
