package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/auth"
	"github.com/xenking/promo-storefront/pkg/httpmiddleware"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

// Scopes granted to API keys. ScopeAdmin implies every other scope.
const (
	ScopeAdmin     = auth.ScopeAdmin
	ScopeCampaigns = "campaigns"
	ScopeOrders    = "orders"
)

// Security authenticates admin requests by HMAC-SHA256 hashed API keys.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security that hashes keys with pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	return hex.EncodeToString(hashKey(pepper, key))
}

func hashKey(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Require rejects requests whose API key is unknown or lacks scope.
func (s *Security) Require(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "api key is required")
				return
			}

			hash := hashKey(s.pepper, key)
			info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				if apperr.CodeOf(err) != apperr.CodeNotFound {
					zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
				}
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}

			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}
			if !info.Allows(scope) {
				writeStatus(w, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
				return
			}

			ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
