package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsScout/internal/domain"
	"NewsScout/internal/ports"
)

// ChatGPTClient implements ports.ChatProvider backed by
// OpenAI-compatible chat completion APIs.
type ChatGPTClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ChatProvider = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client for the given endpoint.
func NewChatGPTClient(endpoint, apiKey string) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends one system-instructed message and returns the plain-text
// reply with token counts and latency.
func (c *ChatGPTClient) Chat(ctx context.Context, model, systemPrompt, userMessage string) (domain.ChatReply, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return domain.ChatReply{}, fmt.Errorf("chat client misconfigured")
	}
	if model == "" {
		return domain.ChatReply{}, fmt.Errorf("model not specified")
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(started).Milliseconds()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.ChatReply{}, fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.ChatReply{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return domain.ChatReply{}, fmt.Errorf("chat response has no choices")
	}

	return domain.ChatReply{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		LatencyMs:    latency,
	}, nil
}
