// Package tutor turns a transcript and a problem into one call to a
// hosted text-generation backend and back into a tutor message.
package tutor

import "context"

// ChatRole is the generic role understood by every backend.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the conversation sent to a backend.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Backend is the capability every tutoring service must provide: one
// stateless, non-streaming chat completion.
type Backend interface {
	SubmitChatCompletion(ctx context.Context, credential, systemPrompt string, messages []ChatMessage, maxTokens int) (string, error)
}

// Modeler is implemented by backends that can report the model they call.
type Modeler interface {
	Model() string
}
