// Package openai implements the tutor backend on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ashureev/mathtutor/internal/tutor"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4"
)

// Client sends one chat completion request per reply. The API key is
// supplied per call, never stored.
type Client struct {
	baseURL string
	model   string
	api     sdk.Client
}

// New creates a client. baseURL is the API host without the /v1 prefix.
// Empty baseURL or model select the defaults.
func New(baseURL, model string, httpc *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if httpc == nil {
		httpc = tutor.NewHTTPClient()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		model:   model,
		api: sdk.NewClient(
			option.WithBaseURL(baseURL+"/v1/"),
			option.WithHTTPClient(httpc),
			option.WithMaxRetries(0),
		),
	}
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// SubmitChatCompletion sends the system prompt as the leading system
// message and returns the content of the first choice.
func (c *Client) SubmitChatCompletion(ctx context.Context, credential, systemPrompt string, messages []tutor.ChatMessage, maxTokens int) (string, error) {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, sdk.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		if m.Role == tutor.ChatRoleAssistant {
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, sdk.UserMessage(m.Content))
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:     sdk.ChatModel(c.model),
		MaxTokens: sdk.Int(int64(maxTokens)),
		Messages:  msgs,
	}, option.WithAPIKey(credential))
	if err != nil {
		return "", backendError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &tutor.BackendError{Message: "response has no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func backendError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &tutor.BackendError{
			StatusCode: apiErr.StatusCode,
			Message:    errorMessage(apiErr.RawJSON(), apiErr),
			Err:        err,
		}
	}
	return &tutor.BackendError{Message: "request failed: " + err.Error(), Err: err}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// errorMessage accepts both the {"error": {...}} envelope and the bare
// error object.
func errorMessage(raw string, fallback error) string {
	var env struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	var bare apiError
	if err := json.Unmarshal([]byte(raw), &bare); err == nil && bare.Message != "" {
		return bare.Message
	}
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return fallback.Error()
}
