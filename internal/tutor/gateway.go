package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/mathtutor/internal/domain"
)

// DefaultMaxTokens bounds the length of a tutor reply.
const DefaultMaxTokens = 500

const redacted = "[REDACTED]"

// Request is everything needed for one tutor reply.
type Request struct {
	Problem    string
	Transcript []domain.Message
	Backend    domain.BackendID
	Credential string
}

// Gateway dispatches requests to the registered backends. Which backend
// answers never changes how the request is built or how the reply is used.
type Gateway struct {
	backends  map[domain.BackendID]Backend
	maxTokens int
	logger    *slog.Logger
}

// NewGateway creates a gateway with no backends registered.
func NewGateway(maxTokens int, logger *slog.Logger) *Gateway {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backends:  make(map[domain.BackendID]Backend),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Register installs b as the implementation of id, replacing any previous one.
func (g *Gateway) Register(id domain.BackendID, b Backend) *Gateway {
	g.backends[id] = b
	return g
}

// MaxTokens returns the reply length bound sent with every call.
func (g *Gateway) MaxTokens() int { return g.maxTokens }

// Model returns the model name behind id, or "" when unknown.
func (g *Gateway) Model(id domain.BackendID) string {
	if m, ok := g.backends[id].(Modeler); ok {
		return m.Model()
	}
	return ""
}

// Reply makes exactly one backend call and returns the tutor's message.
func (g *Gateway) Reply(ctx context.Context, req Request) (domain.Message, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return domain.Message{}, &ConfigurationError{Backend: req.Backend, Reason: "API key is not set"}
	}
	backend, ok := g.backends[req.Backend]
	if !ok {
		return domain.Message{}, &ConfigurationError{Backend: req.Backend, Reason: "backend is not available"}
	}

	system, err := SystemPrompt(req.Problem)
	if err != nil {
		return domain.Message{}, err
	}
	messages, err := ChatMessages(req.Transcript)
	if err != nil {
		return domain.Message{}, err
	}

	g.logger.Debug("Submitting tutor request",
		"backend", req.Backend,
		"messages", len(messages),
		"max_tokens", g.maxTokens,
	)

	text, err := backend.SubmitChatCompletion(ctx, req.Credential, system, messages, g.maxTokens)
	if err != nil {
		return domain.Message{}, classify(req.Backend, req.Credential, err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, &BackendError{Backend: req.Backend, Message: "empty response"}
	}
	return domain.NewMessage(domain.RoleTutor, text), nil
}

// ChatMessages maps transcript roles onto generic chat roles in order.
func ChatMessages(transcript []domain.Message) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(transcript))
	for _, m := range transcript {
		var role ChatRole
		switch m.Role {
		case domain.RoleLearner:
			role = ChatRoleUser
		case domain.RoleTutor:
			role = ChatRoleAssistant
		default:
			return nil, fmt.Errorf("transcript message %s has unknown role %q", m.ID, m.Role)
		}
		out = append(out, ChatMessage{Role: role, Content: m.Content})
	}
	return out, nil
}

func classify(id domain.BackendID, credential string, err error) error {
	var be *BackendError
	if !errors.As(err, &be) {
		be = &BackendError{Message: err.Error(), Err: err}
	}
	out := *be
	out.Backend = id
	if credential != "" {
		out.Message = strings.ReplaceAll(out.Message, credential, redacted)
	}
	return &out
}
