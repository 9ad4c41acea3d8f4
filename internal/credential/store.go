// Package credential holds the access and renewal credentials for each
// signed-in scope. It carries no business logic.
package credential

import (
	"context"
	"sync"

	"github.com/dukerupert/scoutcard/internal/model"
)

// Store is scoped, durable key-value storage for a credential pair.
// Load returns empty Credentials when nothing is stored for the scope.
type Store interface {
	Load(ctx context.Context, scope string) (model.Credentials, error)
	Save(ctx context.Context, scope string, creds model.Credentials) error
	Clear(ctx context.Context, scope string) error
}

// MemoryStore keeps credentials in process memory. It is not durable.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]model.Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]model.Credentials)}
}

func (s *MemoryStore) Load(_ context.Context, scope string) (model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopes[scope], nil
}

func (s *MemoryStore) Save(_ context.Context, scope string, creds model.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = creds
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, scope)
	return nil
}
