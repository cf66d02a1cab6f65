package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleMessages = []domain.Message{
	{Role: domain.RoleSystem, Content: "You are a judge."},
	{Role: domain.RoleUser, Content: "<<<BEGIN EVIDENCE: SIDE A>>>\nx\n<<<END EVIDENCE: SIDE A>>>"},
}

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return newOpenAICompatible(ProviderOpenAI, cfg, openai.GPT4oMini)
}

func TestOpenAIClient_Adjudicate(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  Side A wins.\nVERDICT: A  "}}]}`)
	})

	out, err := c.Adjudicate(context.Background(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Side A wins.\nVERDICT: A", out)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, sampleMessages[1].Content, got.Messages[1].Content)
	assert.Equal(t, oracleMaxTokens, got.MaxTokens)
}

func TestOpenAIClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, domain.ErrOracleRateLimited},
		{"gateway timeout", http.StatusGatewayTimeout, `{"error":{"message":"upstream","type":"server_error"}}`, domain.ErrOracleTimeout},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, domain.ErrOracleUnavailable},
		{"non-json body", http.StatusServiceUnavailable, `down for maintenance`, domain.ErrOracleUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Adjudicate(context.Background(), sampleMessages)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var failure *domain.OracleFailure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, ProviderOpenAI, failure.Provider)
			assert.Equal(t, tt.status, failure.Status)
		})
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})

	_, err := c.Adjudicate(context.Background(), sampleMessages)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestOpenAIClient_DeadlineIsTimeout(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Adjudicate(ctx, sampleMessages)
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)
}

func TestAnthropicClient_Adjudicate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"VERDICT: B"}]}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.url = srv.URL

	out, err := c.Adjudicate(context.Background(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "VERDICT: B", out)
	assert.Equal(t, "You are a judge.", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.RoleUser, got.Messages[0].Role)
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.url = srv.URL

	_, err := c.Adjudicate(context.Background(), sampleMessages)
	assert.ErrorIs(t, err, domain.ErrOracleRateLimited)
}

func TestGeminiClient_Adjudicate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"It's close.\nVERDICT: TIE"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key")
	c.url = srv.URL

	out, err := c.Adjudicate(context.Background(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "It's close.\nVERDICT: TIE", out)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "You are a judge.", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
}

func TestGeminiClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewGeminiClient("secret-key")
	c.url = srv.URL
	srv.Close()

	_, err := c.Adjudicate(context.Background(), sampleMessages)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.False(t, strings.Contains(err.Error(), "secret-key"), "api key leaked into error: %v", err)
}

func TestMockClient_Concurrent(t *testing.T) {
	m := NewMockClient()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Adjudicate(context.Background(), sampleMessages)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, m.CallCount())

	m.SetError(domain.ErrOracleTimeout)
	_, err := m.Adjudicate(context.Background(), sampleMessages)
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)

	m.Reset()
	out, err := m.Adjudicate(context.Background(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, mockResponse, out)
	assert.Equal(t, 1, m.CallCount())
}

func TestNewClient(t *testing.T) {
	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCerebras} {
		_, err := NewClient(p, "")
		assert.Error(t, err, "%s without key", p)

		c, err := NewClient(p, "k")
		require.NoError(t, err)
		assert.NotNil(t, c)
	}

	c, err := NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	_, err = NewClient("pirate", "k")
	assert.Error(t, err)
}

func TestTransportFailure_NetTimeout(t *testing.T) {
	err := transportFailure("x", &timeoutErr{})
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)

	err = transportFailure("x", errors.New("connection refused"))
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
