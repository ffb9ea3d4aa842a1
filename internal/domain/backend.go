package domain

import (
	"fmt"
	"strings"
)

// BackendID selects which hosted text-generation service answers as the tutor.
type BackendID string

const (
	// BackendClaude is the Anthropic Messages API.
	BackendClaude BackendID = "claude"
	// BackendChatGPT is the OpenAI Chat Completions API.
	BackendChatGPT BackendID = "chatgpt"
)

// Backends lists every supported backend in display order.
func Backends() []BackendID {
	return []BackendID{BackendClaude, BackendChatGPT}
}

// DisplayName returns the label shown in backend pickers.
func (b BackendID) DisplayName() string {
	switch b {
	case BackendClaude:
		return "Claude (Anthropic)"
	case BackendChatGPT:
		return "ChatGPT (OpenAI)"
	default:
		return string(b)
	}
}

// ParseBackendID maps identifiers, vendor names and display names to a BackendID.
func ParseBackendID(s string) (BackendID, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "claude", v == "anthropic", strings.HasPrefix(v, "claude "):
		return BackendClaude, nil
	case v == "chatgpt", v == "openai", v == "gpt", strings.HasPrefix(v, "chatgpt "):
		return BackendChatGPT, nil
	default:
		return "", fmt.Errorf("unknown backend %q; use 'claude' or 'chatgpt'", s)
	}
}
