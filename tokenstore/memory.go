// Package tokenstore keeps the current session token between runs.
package tokenstore

import (
	"context"
	"sync"

	"github.com/keysai/go-auth"
)

// Memory holds the token in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

var _ auth.TokenStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the stored token, or "" when there is none.
func (m *Memory) Load(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Save(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
