package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer fakes the OpenAI chat completions endpoint and records the
// last request body.
func chatServer(t *testing.T, status int, content string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &last)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, "hello")
	p := NewOpenAIProvider("sk-test", "gpt-4o", 100, 0.2, WithBaseURL(srv.URL))

	resp, err := p.Chat(context.Background(), Request{Messages: []ChatMessage{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.EqualValues(t, 8, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o", (*last)["model"])
	assert.Nil(t, (*last)["response_format"])
}

func TestOpenAIProvider_SchemaFormatAndModelOverride(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, `{"a":1}`)
	p := NewOpenAIProvider("sk-test", "gpt-4o", 100, 0.2, WithBaseURL(srv.URL))

	_, err := p.Chat(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   NewJSONSchemaFormat("thing", json.RawMessage(`{"type":"object"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", (*last)["model"])
	rf, ok := (*last)["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", rf["type"])
}

func TestDeepSeekProvider_FallsBackToJSONObject(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, `{"a":1}`)
	p := NewDeepSeekProvider("sk-test", ModelDeepSeekChat, 100, 0.2)
	p.client = NewOpenAIProvider("sk-test", ModelDeepSeekChat, 100, 0.2, WithBaseURL(srv.URL)).client

	_, err := p.Chat(context.Background(), Request{
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   NewJSONSchemaFormat("thing", json.RawMessage(`{"type":"object"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", p.Name())

	rf := (*last)["response_format"].(map[string]any)
	assert.Equal(t, "json_object", rf["type"])
	msgs := (*last)["messages"].([]any)
	system := msgs[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], `{"type":"object"}`)
}

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	srv, _ := chatServer(t, http.StatusUnauthorized, "")
	p := NewOpenAIProvider(testKey, "gpt-4o", 100, 0.7, WithBaseURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.Chat(ctx, Request{Messages: []ChatMessage{UserMessage("test")}})
	require.Error(t, err)

	errStr := err.Error()
	assert.NotContains(t, errStr, testKey)
	assert.NotContains(t, errStr, "Authorization:")
}

// TestGeminiInitErrorPreserved verifies Gemini returns initialization errors
func TestGeminiInitErrorPreserved(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	p := NewGeminiProvider("", ModelGeminiFlash25, 100, 0.7)

	_, err := p.Chat(context.Background(), Request{Messages: []ChatMessage{UserMessage("test")}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to initialize"), "got %v", err)
}

func TestParseProviderType(t *testing.T) {
	tests := map[string]ProviderType{
		"openai":   ProviderOpenAI,
		"Claude":   ProviderAnthropic,
		"deepseek": ProviderDeepSeek,
		" google ": ProviderGemini,
	}
	for in, want := range tests {
		got, err := ParseProviderType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseProviderType("llama")
	assert.Error(t, err)
}

func TestProviderBuilder_FromEnvRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := ProviderAnthropic.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	p, err := ProviderAnthropic.Model("").APIKey("sk-ant")
	require.NoError(t, err)
	assert.Equal(t, ModelAnthropicClaudeSonnet4, p.Model())
}

func TestProviderBuilder_OracleWithBaseURL(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, "pong")

	oracle, err := ProviderOpenAI.Model(ModelOpenAIGPT4oMini).BaseURL(srv.URL).Oracle("sk-test", nil)
	require.NoError(t, err)

	text, err := oracle.Complete(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
	assert.Equal(t, ModelOpenAIGPT4oMini, (*last)["model"])
	assert.Equal(t, "openai", oracle.Provider().Name())
}

func TestProviderBuilder_BaseURLUnsupported(t *testing.T) {
	_, err := ProviderGemini.Model("").BaseURL("http://localhost:1").APIKey("key")
	assert.Error(t, err)

	p, err := ProviderDeepSeek.Model("").BaseURL("http://localhost:1").APIKey("key")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, ModelDeepSeekChat, p.Model())
}

func TestProviderType_Table(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini} {
		parsed, err := ParseProviderType(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
		assert.NotEmpty(t, p.EnvVar())
		assert.NotEmpty(t, p.DefaultModel())
	}
	assert.Equal(t, "unknown", ProviderType(99).String())
}
