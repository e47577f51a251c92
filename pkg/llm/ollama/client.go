// Package ollama provides the Ollama implementation of llm.Provider.
//
// Ollama serves local models behind an OpenAI-compatible HTTP endpoint, so
// the client speaks /v1/chat/completions directly without an SDK.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// Client implements llm.Provider against a local or remote Ollama server.
type Client struct {
	client  *http.Client
	model   string
	baseURL string
}

// Config contains configuration for creating an Ollama client.
// Model defaults to "llama3.2-vision:11b"; BaseURL defaults to
// "http://localhost:11434/v1". HTTPClient overrides the default client
// (large local models need a generous timeout).
type Config struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Ollama provider.
func NewClient(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.2-vision:11b"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 180 * time.Second,
		}
	}

	return &Client{
		client:  client,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Generate generates text from a bare prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateChat(ctx, &llm.ChatRequest{Prompt: prompt}, opts...)
}

// GenerateChat generates the reply for one interactive turn.
func (c *Client) GenerateChat(ctx context.Context, req *llm.ChatRequest, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var messages []map[string]interface{}
	if req.System != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.System})
	}
	for _, msg := range req.History {
		messages = append(messages, map[string]interface{}{"role": msg.Role, "content": msg.Content})
	}

	if len(req.Image) > 0 {
		dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(req.Image))
		messages = append(messages, map[string]interface{}{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": req.Prompt},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			},
		})
	} else {
		messages = append(messages, map[string]interface{}{"role": "user", "content": req.Prompt})
	}

	reqBody := map[string]interface{}{
		"model":    c.model,
		"messages": messages,
		"options": map[string]interface{}{
			"temperature": options.Temperature,
			"num_predict": options.MaxTokens,
			"top_p":       options.TopP,
		},
	}
	if len(options.Stop) > 0 {
		reqBody["options"].(map[string]interface{})["stop"] = options.Stop
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned from Ollama")
	}

	return response.Choices[0].Message.Content, nil
}

// Capabilities reports vision support (model dependent; vision-capable
// models ignore nothing, text-only models drop the image server side).
func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{Vision: true}
}

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
