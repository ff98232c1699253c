package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/competeiq/api/internal/config"
	"github.com/competeiq/api/internal/obs"
)

// GroqClient talks to the OpenAI-compatible Groq API.
type GroqClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	speechModel string
	limiter     *rate.Limiter
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// SpeechRequest is the body of POST /audio/speech.
type SpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	c := &GroqClient{
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		speechModel: cfg.SpeechModel,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// ChatCompletion sends a system and a user message and returns the reply.
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user, nil)
}

// ChatJSON is ChatCompletion in JSON mode.
func (c *GroqClient) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user, &ResponseFormat{Type: "json_object"})
}

func (c *GroqClient) chat(ctx context.Context, system, user string, format *ResponseFormat) (content string, err error) {
	start := time.Now()
	defer func() { obs.RecordLLMCall("chat", start, err) }()

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.7,
		MaxTokens:      2048,
		ResponseFormat: format,
	}

	respBody, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// Speech synthesizes script with voice and returns the audio bytes (mp3).
func (c *GroqClient) Speech(ctx context.Context, script, voice string) (audio []byte, err error) {
	start := time.Now()
	defer func() { obs.RecordLLMCall("speech", start, err) }()

	return c.post(ctx, "/audio/speech", SpeechRequest{
		Model:          c.speechModel,
		Input:          script,
		Voice:          voice,
		ResponseFormat: "mp3",
	})
}

func (c *GroqClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GroqClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}
