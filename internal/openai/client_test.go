package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

// newTestClient returns a Client pointed at the given test server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(Config{
		APIKey:  "sk-test-0123456789012345678901234567890123456789",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func respondWith(t *testing.T, w http.ResponseWriter, msg Message) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{
			{"index": 0, "message": msg, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
	})
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCompleteFinalResponse(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		respondWith(t, w, Message{Role: RoleAssistant, Content: "4"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	msg, err := client.Complete(context.Background(), "gpt-4o", []Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "2+2?"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test-0123456789012345678901234567890123456789" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(gotBody.Messages))
	}
	if gotBody.Tools != nil {
		t.Errorf("tools should be omitted when nil, got %v", gotBody.Tools)
	}
	if msg.Content != "4" || msg.HasToolCalls() {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestCompleteSendsToolSchemas(t *testing.T) {
	var rawBody map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&rawBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		respondWith(t, w, Message{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:   "call_1",
				Type: ToolCallTypeFunction,
				Function: FunctionCall{
					Name:      "get_weather",
					Arguments: `{"city":"Rome"}`,
				},
			}},
		})
	}))
	defer server.Close()

	schema := &jsonschema.Schema{Type: "object"}
	client := newTestClient(t, server)
	msg, err := client.Complete(context.Background(), "gpt-4o",
		[]Message{{Role: RoleUser, Content: "weather in Rome?"}},
		[]ToolSchema{NewFunctionSchema("get_weather", "Current weather for a city", schema)},
	)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	toolsJSON, ok := rawBody["tools"]
	if !ok {
		t.Fatal("tools field missing from request body")
	}
	var tools []ToolSchema
	if err := json.Unmarshal(toolsJSON, &tools); err != nil {
		t.Fatalf("unmarshal tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Type != "function" || tools[0].Function.Name != "get_weather" {
		t.Errorf("unexpected tools payload %+v", tools)
	}

	if !msg.HasToolCalls() {
		t.Fatal("expected deferred response")
	}
	if msg.ToolCalls[0].Function.Arguments != `{"city":"Rome"}` {
		t.Errorf("arguments = %q", msg.ToolCalls[0].Function.Arguments)
	}
}

func TestCompleteServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Complete(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", terr.StatusCode)
	}
	if terr.Kind != "invalid_request_error" {
		t.Errorf("kind = %q", terr.Kind)
	}
	if terr.Message != "Incorrect API key provided" {
		t.Errorf("message = %q", terr.Message)
	}
}

func TestCompleteMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Complete(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Kind != "decode_error" {
		t.Errorf("kind = %q", terr.Kind)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Complete(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, ErrEmptyChoices) {
		t.Fatalf("expected ErrEmptyChoices, got %v", err)
	}
}

func TestCompleteNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediately: connection refused

	client := newTestClient(t, server)
	_, err := client.Complete(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Kind != "network_error" || terr.StatusCode != 0 {
		t.Errorf("unexpected error %+v", terr)
	}
}
