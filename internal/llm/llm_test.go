package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prreview/internal/config"
)

func TestOpenAIComplete(t *testing.T) {
	var received openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.OpenAI = config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-test"}

	client, prov, model, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig error: %v", err)
	}
	if prov != ProviderOpenAI || model != "gpt-test" {
		t.Fatalf("unexpected provider/model %s/%s", prov, model)
	}

	out, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "review this", MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != "[]" {
		t.Fatalf("unexpected completion %q", out)
	}
	if received.Model != "gpt-test" || len(received.Messages) != 2 || received.Messages[1].Content != "review this" {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers: %v", r.Header)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"[{\"type\":"},{"type":"text","text":"\"bug\",\"description\":\"x\"}]"}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "anthropic"
	cfg.LLM.Anthropic = config.AnthropicConfig{APIKey: "ak", BaseURL: srv.URL, Model: "claude-test"}

	client, _, _, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig error: %v", err)
	}
	out, err := client.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != `[{"type":"bug","description":"x"}]` {
		t.Fatalf("unexpected joined text %q", out)
	}
}

func TestGoogleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("missing api key query param")
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "google"
	cfg.LLM.Google = config.GoogleLLMConfig{APIKey: "gk", BaseURL: srv.URL, Model: "gemini-test"}

	client, _, _, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig error: %v", err)
	}
	if out, err := client.Complete(context.Background(), Request{Prompt: "p"}); err != nil || out != "[]" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
}

func TestComplete_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.OpenAI = config.OpenAIConfig{APIKey: "sk", BaseURL: srv.URL, Model: "m"}
	client, _, _, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig error: %v", err)
	}

	_, err = client.Complete(context.Background(), Request{Prompt: "p"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
}

func TestNewClientFromConfig_Unconfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	if _, _, _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatalf("expected error for missing api key")
	}

	cfg.LLM.DefaultProvider = "mystery"
	if _, _, _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}
