package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/mathtutor/internal/tutor"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// capturedRequest is the wire form of a chat completion request.
type capturedRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

func TestSubmitChatCompletion(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Which term has x?"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "gpt-test", srv.Client())
	reply, err := c.SubmitChatCompletion(context.Background(), "sk-test", "be a tutor", []tutor.ChatMessage{
		{Role: tutor.ChatRoleUser, Content: "hi"},
		{Role: tutor.ChatRoleAssistant, Content: "hello"},
	}, 500)
	if err != nil {
		t.Fatalf("SubmitChatCompletion: %v", err)
	}
	if reply != "Which term has x?" {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 500 {
		t.Errorf("request = %+v", got)
	}
	want := []chatMessage{
		{Role: "system", Content: "be a tutor"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	if len(got.Messages) != len(want) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i := range want {
		if got.Messages[i] != want[i] {
			t.Errorf("messages[%d] = %+v, want %+v", i, got.Messages[i], want[i])
		}
	}
}

func TestSubmitChatCompletionErrorEnvelope(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", srv.Client()).SubmitChatCompletion(context.Background(), "k", "", nil, 10)
	var be *tutor.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *tutor.BackendError", err)
	}
	if be.StatusCode != http.StatusTooManyRequests || be.Message != "Rate limit reached" {
		t.Errorf("BackendError = %+v", be)
	}
	if calls != 1 {
		t.Errorf("server saw %d requests, want 1", calls)
	}
}

func TestSubmitChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", srv.Client()).SubmitChatCompletion(context.Background(), "k", "", nil, 10)
	var be *tutor.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *tutor.BackendError", err)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New("", "", nil)
	if c.Model() != DefaultModel {
		t.Errorf("Model() = %q", c.Model())
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
