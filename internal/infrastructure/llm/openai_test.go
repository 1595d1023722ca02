package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ContentDigest/internal/config"
)

func TestCompleteParsesFirstChoice(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  a concise answer \n"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "secret"})
	out, err := client.Complete(context.Background(), "be brief", "what is go")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "a concise answer" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("expected model in payload, got %v", gotBody["model"])
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "secret"})
	if _, err := client.Complete(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestCompleteRejectsMisconfiguredClient(t *testing.T) {
	t.Parallel()

	client := NewClient(config.LLMConfig{Endpoint: "http://localhost:9", Model: "m"})
	if _, err := client.Complete(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected misconfiguration error without api key")
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	if _, err := client.Complete(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestProviderNamesModel(t *testing.T) {
	t.Parallel()

	client := NewClient(config.LLMConfig{Model: "gpt-4o-mini"})
	if got := client.Provider(); got != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected provider %q", got)
	}
}
