// Package auth guards the heartbeat and query routes with a shared API key.
package auth

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/cryptoutils"
	"github.com/gosom/pingwatch/internal/entities"
)

const (
	HeaderName = "X-API-KEY"
	QueryParam = "api_key"

	maxRejected = 4096
)

type Config struct {
	Log zerolog.Logger
	// APIKey is compared in constant time.
	APIKey string
	// APIKeyHash is a bcrypt hash, used when APIKey is empty.
	APIKeyHash string
}

type AuthService struct {
	log        zerolog.Logger
	apiKey     string
	apiKeyHash []byte
	verified   *xsync.Map[string, struct{}]
	rejected   *xsync.Map[string, struct{}]
	compare    func(hashed []byte, key string) error
}

func New(cfg Config) (*AuthService, error) {
	ans := AuthService{
		log:      cfg.Log,
		apiKey:   cfg.APIKey,
		verified: xsync.NewMap[string, struct{}](),
		rejected: xsync.NewMap[string, struct{}](),
		compare:  cryptoutils.CompareHashAndKey,
	}
	if len(cfg.APIKeyHash) > 0 {
		ans.apiKeyHash = []byte(cfg.APIKeyHash)
	}
	if !ans.Enabled() {
		cfg.Log.Warn().Msg("no API key configured, heartbeat and query routes are open")
	}
	return &ans, nil
}

func (a *AuthService) Enabled() bool {
	return len(a.apiKey) > 0 || len(a.apiKeyHash) > 0
}

// Verify reports whether key matches the configured secret. Keys that
// passed or failed the bcrypt check are remembered by their SHA-256, so a
// repeated key costs one comparison.
func (a *AuthService) Verify(key string) bool {
	if !a.Enabled() {
		return true
	}
	if len(key) == 0 {
		return false
	}
	if len(a.apiKey) > 0 {
		return cryptoutils.Equal(key, a.apiKey)
	}
	digest := cryptoutils.Sha256(key)
	if _, ok := a.verified.Load(digest); ok {
		return true
	}
	if _, ok := a.rejected.Load(digest); ok {
		return false
	}
	if err := a.compare(a.apiKeyHash, key); err != nil {
		if a.rejected.Size() >= maxRejected {
			a.rejected.Clear()
		}
		a.rejected.Store(digest, struct{}{})
		return false
	}
	a.verified.Store(digest, struct{}{})
	return true
}

func KeyFromRequest(req *http.Request) string {
	if k := req.URL.Query().Get(QueryParam); len(k) > 0 {
		return k
	}
	return req.Header.Get(HeaderName)
}

func (a *AuthService) APIKey(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if !a.Verify(KeyFromRequest(req.Request)) {
			a.log.Warn().Str("path", req.URL.Path).Msg("rejected request with invalid API key")
			return toJSON(w, http.StatusUnauthorized, entities.Ack{Status: 0, Msg: "Invalid API key"})
		}
		return next(w, req)
	}
}

func toJSON(w http.ResponseWriter, statusCode int, value any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if value == nil {
		return nil
	}
	b, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
