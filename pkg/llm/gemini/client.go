// Package gemini provides the Google Gemini implementation of llm.Provider.
//
// Gemini is the only built-in provider that honors the engine's embedded
// search directives, so its Capabilities set SearchDirectives.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// Client implements llm.Provider using the Generative Language REST API.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config contains configuration for creating a Gemini client.
// APIKey is required; Model defaults to "gemini-2.5-flash"; BaseURL
// defaults to the official endpoint.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Gemini provider.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 120 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Generate generates text from a bare prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateChat(ctx, &llm.ChatRequest{Prompt: prompt}, opts...)
}

// GenerateChat generates the reply for one interactive turn.
//
// History roles are mapped to Gemini's "user"/"model" convention; the
// system instruction rides in the dedicated system_instruction field.
func (c *Client) GenerateChat(ctx context.Context, req *llm.ChatRequest, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var contents []map[string]interface{}
	for _, msg := range req.History {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": []map[string]interface{}{{"text": msg.Content}},
		})
	}

	parts := []map[string]interface{}{{"text": req.Prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, map[string]interface{}{
			"inline_data": map[string]string{
				"mime_type": "image/jpeg",
				"data":      base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	contents = append(contents, map[string]interface{}{
		"role":  "user",
		"parts": parts,
	})

	reqBody := map[string]interface{}{
		"contents": contents,
		"generationConfig": map[string]interface{}{
			"temperature":     options.Temperature,
			"maxOutputTokens": options.MaxTokens,
			"topP":            options.TopP,
		},
	}
	if req.System != "" {
		reqBody["system_instruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": req.System}},
		}
	}
	if len(options.Stop) > 0 {
		reqBody["generationConfig"].(map[string]interface{})["stopSequences"] = options.Stop
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
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
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("llm generation failed: no candidates returned from Gemini API")
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}

// Capabilities reports vision and search-directive support.
func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{SearchDirectives: true, Vision: true}
}

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
