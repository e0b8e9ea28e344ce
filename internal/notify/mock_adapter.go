package notify

import (
	"context"
	"sync"
)

// MockAdapter implements Adapter for testing. It records posted notices and
// can be told to fail.
type MockAdapter struct {
	mu     sync.Mutex
	name   string
	posted []Notice
	err    error
}

// NewMockAdapter creates a MockAdapter with the given name.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{name: name}
}

// Name returns the mock's configured name.
func (m *MockAdapter) Name() string { return m.name }

// Post records the notice, or returns the configured error.
func (m *MockAdapter) Post(ctx context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.posted = append(m.posted, n)
	return nil
}

// FailWith makes every subsequent Post return err.
func (m *MockAdapter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Posted returns a copy of the recorded notices.
func (m *MockAdapter) Posted() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notice, len(m.posted))
	copy(out, m.posted)
	return out
}
