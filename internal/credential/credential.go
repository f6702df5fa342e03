// Package credential looks up stored provider tokens for an owner.
//
// Tokens are written by the edge gateway's OAuth flows; this service only
// reads them. A missing row means the owner never connected that provider.
package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConnected is returned when the owner has no stored credential for a
// provider.
var ErrNotConnected = errors.New("provider not connected")

// Token is a stored provider credential.
type Token struct {
	AccessToken string
	AccountID   string            // provider-side account/page/channel ID
	Extra       map[string]string // provider-specific fields (e.g. page tokens)
}

// Store resolves the credential an adapter should publish with.
type Store interface {
	Get(ctx context.Context, ownerID, provider string) (*Token, error)
}

// MemoryStore is an in-memory credential store for dev runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]map[string]*Token // ownerID -> provider -> token
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]map[string]*Token)}
}

// Put stores a token for an owner/provider pair.
func (s *MemoryStore) Put(ownerID, provider string, tok *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.tokens[ownerID]
	if m == nil {
		m = make(map[string]*Token)
		s.tokens[ownerID] = m
	}
	m[provider] = tok
}

// Get returns the stored token or ErrNotConnected.
func (s *MemoryStore) Get(ctx context.Context, ownerID, provider string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[ownerID][provider]
	if !ok {
		return nil, ErrNotConnected
	}
	return tok, nil
}

var _ Store = (*MemoryStore)(nil)
