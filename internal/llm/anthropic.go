package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/verdict/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
)

type AnthropicClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		url:        anthropicMessagesURL,
		httpClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Adjudicate sends system messages through the top-level system field, since
// the messages API only accepts user and assistant roles.
func (c *AnthropicClient) Adjudicate(ctx context.Context, messages []domain.Message) (string, error) {
	areq := anthropicRequest{
		Model:       anthropicModel,
		MaxTokens:   oracleMaxTokens,
		Temperature: oracleTemperature,
	}
	var system []string
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		areq.Messages = append(areq.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	areq.System = strings.Join(system, "\n\n")

	body, err := json.Marshal(areq)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportFailure(ProviderAnthropic, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportFailure(ProviderAnthropic, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusFailure(ProviderAnthropic, resp.StatusCode, respBody)
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", emptyFailure(ProviderAnthropic, "unreadable response: "+err.Error())
	}
	if result.Error != nil {
		return "", emptyFailure(ProviderAnthropic, result.Error.Message)
	}
	if len(result.Content) == 0 {
		return "", emptyFailure(ProviderAnthropic, "no content returned")
	}

	text := strings.TrimSpace(result.Content[0].Text)
	if text == "" {
		return "", emptyFailure(ProviderAnthropic, "empty completion")
	}
	return text, nil
}
