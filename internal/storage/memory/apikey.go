package memory

import (
	"context"
	"sync"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyStore)(nil)

// APIKeyStore holds hashed API keys.
type APIKeyStore struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyStore returns a store holding keys.
func NewAPIKeyStore(keys ...auth.APIKeyInfo) *APIKeyStore {
	s := &APIKeyStore{byHash: make(map[string]auth.APIKeyInfo, len(keys))}
	for _, k := range keys {
		s.byHash[k.KeyHash] = k
	}
	return s
}

func (s *APIKeyStore) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.byHash[hash]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "api key", ID: "<redacted>"}
	}
	return &info, nil
}
