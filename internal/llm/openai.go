// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm calls the OpenAI chat-completion API for the two model-facing
// stages: batched field extraction and rule-candidate generation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/extract-engine/internal/httputil"
	"github.com/pdiddy/extract-engine/internal/learner"
	"github.com/pdiddy/extract-engine/pkg/types"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Client wraps an OpenAI chat-completion endpoint. It serves both as the
// pipeline's extractor and as the learner's rule generator; the two stages
// may use separate Clients with different models.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a Client from cfg. BaseURL overrides the endpoint for
// local gateways and tests; requests retry on HTTP 429 with exponential
// backoff.
func NewClient(cfg types.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiCfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &httputil.RetryTransport{MaxRetries: cfg.MaxRetries},
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
		slog.Warn("AI model not configured, using default", "model", defaultModel)
	}

	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: model,
	}, nil
}

// Extract resolves every schema field from text in one chat-completion call.
// Fields the model reports as null or empty are absent from the result.
func (c *Client) Extract(ctx context.Context, text string, schema types.Schema) (types.Extraction, error) {
	prompt, err := renderExtractionPrompt(text, schema)
	if err != nil {
		return types.Extraction{}, fmt.Errorf("rendering extraction prompt: %w", err)
	}

	content, usage, err := c.complete(ctx, prompt)
	if err != nil {
		return types.Extraction{}, fmt.Errorf("extraction call: %w", err)
	}

	// Null fields decode to nil pointers and are dropped.
	var raw map[string]*string
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return types.Extraction{}, fmt.Errorf("parsing extraction response: %w", err)
	}

	fields := make(map[string]string)
	for field := range schema {
		if v, ok := raw[field]; ok && v != nil && strings.TrimSpace(*v) != "" {
			fields[field] = *v
		}
	}

	slog.Debug("extraction call complete", "model", c.model,
		"requested", len(schema), "resolved", len(fields))
	return types.Extraction{Fields: fields, Usage: usage}, nil
}

// candidateResponse is the rule-generation response body.
type candidateResponse struct {
	ExtractionPattern string `json:"extraction_pattern"`
	ValidationPattern string `json:"validation_pattern"`
}

// Propose asks the model for one rule candidate. Syntactic or semantic flaws
// in the proposal are for the caller's checks to find; only transport and
// response-shape failures are errors here.
func (c *Client) Propose(ctx context.Context, req learner.Request) (learner.Candidate, types.Usage, error) {
	prompt, err := renderRuleGenPrompt(req)
	if err != nil {
		return learner.Candidate{}, types.Usage{}, fmt.Errorf("rendering rule-generation prompt: %w", err)
	}

	content, usage, err := c.complete(ctx, prompt)
	if err != nil {
		return learner.Candidate{}, usage, fmt.Errorf("rule-generation call: %w", err)
	}

	var resp candidateResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return learner.Candidate{}, usage, fmt.Errorf("parsing rule-generation response: %w", err)
	}
	if resp.ExtractionPattern == "" {
		return learner.Candidate{}, usage, fmt.Errorf("rule-generation response has no extraction pattern")
	}

	return learner.Candidate{
		ExtractionPattern: resp.ExtractionPattern,
		ValidationPattern: resp.ValidationPattern,
	}, usage, nil
}

// complete issues one chat-completion request in JSON mode and returns the
// response content with token usage.
func (c *Client) complete(ctx context.Context, prompt string) (string, types.Usage, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", types.Usage{}, err
	}

	usage := types.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("model returned no choices")
	}

	return stripFences(resp.Choices[0].Message.Content), usage, nil
}

// stripFences removes a Markdown code fence wrapping, which some models emit
// around JSON despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
