package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/Harshitk-cp/verdict/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	cerebrasBaseURL = "https://api.cerebras.ai/v1"
	cerebrasModel   = "llama-3.3-70b"

	oracleTemperature = 0.8
	oracleMaxTokens   = 250
)

// OpenAIClient talks to the OpenAI chat completions API, or to any
// OpenAI-compatible endpoint such as Cerebras.
type OpenAIClient struct {
	provider string
	model    string
	client   *openai.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return newOpenAICompatible(ProviderOpenAI, openai.DefaultConfig(apiKey), openai.GPT4oMini)
}

func NewCerebrasClient(apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = cerebrasBaseURL
	return newOpenAICompatible(ProviderCerebras, cfg, cerebrasModel)
}

func newOpenAICompatible(provider string, cfg openai.ClientConfig, model string) *OpenAIClient {
	return &OpenAIClient{
		provider: provider,
		model:    model,
		client:   openai.NewClientWithConfig(cfg),
	}
}

func (c *OpenAIClient) Adjudicate(ctx context.Context, messages []domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: oracleTemperature,
		MaxTokens:   oracleMaxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", emptyFailure(c.provider, "no choices returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", emptyFailure(c.provider, "empty completion")
	}
	return text, nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusFailure(c.provider, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusFailure(c.provider, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	return transportFailure(c.provider, err)
}

func openAIRole(role string) string {
	switch role {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
