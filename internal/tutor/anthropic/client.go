// Package anthropic implements the tutor backend on the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ashureev/mathtutor/internal/tutor"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-opus-4-1-20250805"
)

// Client sends one Messages request per reply. The API key is supplied per
// call, never stored.
type Client struct {
	baseURL string
	model   string
	api     sdk.Client
}

// New creates a client. Empty baseURL or model select the defaults.
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
			option.WithBaseURL(baseURL+"/"),
			option.WithHTTPClient(httpc),
			option.WithMaxRetries(0),
		),
	}
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// SubmitChatCompletion sends one non-streaming request and returns the
// text of the first text content block.
func (c *Client) SubmitChatCompletion(ctx context.Context, credential, systemPrompt string, messages []tutor.ChatMessage, maxTokens int) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  make([]sdk.MessageParam, 0, len(messages)),
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}
	for _, m := range messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == tutor.ChatRoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	msg, err := c.api.Messages.New(ctx, params, option.WithAPIKey(credential))
	if err != nil {
		return "", backendError(err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &tutor.BackendError{Message: "response has no text content"}
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

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorMessage extracts "type: message" from an API error body.
func errorMessage(raw string, fallback error) string {
	var env errorResponse
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Error.Message != "" {
		if env.Error.Type != "" {
			return env.Error.Type + ": " + env.Error.Message
		}
		return env.Error.Message
	}
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return fallback.Error()
}
