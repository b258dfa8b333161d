// Package store provides credential stores for token.Manager: in-memory,
// an encrypted file, and Redis for sessions shared between processes.
package store

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
)

// Memory keeps credentials for the life of the process.
type Memory struct {
	mu    sync.RWMutex
	creds *oauth.Credentials
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Save(ctx context.Context, creds *oauth.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *Memory) Load(ctx context.Context) (*oauth.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *Memory) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}
