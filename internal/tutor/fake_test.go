package tutor

import (
	"context"
	"sync"
)

type call struct {
	credential string
	system     string
	messages   []ChatMessage
	maxTokens  int
}

type fakeBackend struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []call
	// block, when set, is waited on before replying.
	block chan struct{}
}

func (f *fakeBackend) SubmitChatCompletion(_ context.Context, credential, systemPrompt string, messages []ChatMessage, maxTokens int) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{
		credential: credential,
		system:     systemPrompt,
		messages:   append([]ChatMessage(nil), messages...),
		maxTokens:  maxTokens,
	})
	return f.reply, f.err
}

func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}
