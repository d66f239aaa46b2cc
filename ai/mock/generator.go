package mock

import (
	"context"
	"sync"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, echoes the last turn with fixed usage numbers.
	GenerateFunc func(ctx context.Context, turns []core.ConversationTurn, maxTokens int) (*ai.Completion, error)

	// ModelName is returned by Model. Default "mock-model".
	ModelName string

	mu        sync.Mutex
	callCount int
	lastTurns []core.ConversationTurn
	lastMax   int
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{ModelName: "mock-model"}
}

// Model returns ModelName.
func (m *MockGenerator) Model() string {
	return m.ModelName
}

// Generate records the call and returns the injected or default completion.
func (m *MockGenerator) Generate(ctx context.Context, turns []core.ConversationTurn, maxTokens int) (*ai.Completion, error) {
	m.mu.Lock()
	m.callCount++
	m.lastTurns = append([]core.ConversationTurn(nil), turns...)
	m.lastMax = maxTokens
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, turns, maxTokens)
	}

	text := ""
	if len(turns) > 0 {
		text = "answer: " + turns[len(turns)-1].Content
	}
	return &ai.Completion{
		Text:         text,
		InputTokens:  10,
		OutputTokens: 5,
		StopReason:   "end_turn",
	}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastTurns returns the turns passed to the most recent Generate call.
func (m *MockGenerator) LastTurns() []core.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTurns
}

// LastMaxTokens returns the token limit passed to the most recent call.
func (m *MockGenerator) LastMaxTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMax
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastTurns = nil
	m.lastMax = 0
	m.GenerateFunc = nil
}
