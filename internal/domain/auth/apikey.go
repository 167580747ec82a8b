// Package auth describes the API keys that guard admin routes.
package auth

import (
	"context"
	"slices"
)

// ScopeAdmin grants every scope.
const ScopeAdmin = "admin"

// APIKeyInfo is a stored API key. Only the HMAC hash of the key is kept.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key grants scope.
func (k *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, ScopeAdmin) || slices.Contains(k.Scopes, scope)
}

// Repository looks up active API keys by hash. Unknown and revoked keys
// yield an *apperr.NotFoundError.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
