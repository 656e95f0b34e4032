package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/cryptoutils"
)

func newRouter(t *testing.T, cfg Config) *bunrouter.Router {
	t.Helper()
	cfg.Log = zerolog.Nop()
	a, err := New(cfg)
	require.NoError(t, err)
	router := bunrouter.New()
	router.GET("/ping/:worker", a.APIKey(func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	}))
	return router
}

func do(router http.Handler, target string, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set(HeaderName, header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey_Plain(t *testing.T) {
	router := newRouter(t, Config{APIKey: "s3cret"})

	require.Equal(t, http.StatusOK, do(router, "/ping/w1?api_key=s3cret", "").Code)
	require.Equal(t, http.StatusOK, do(router, "/ping/w1", "s3cret").Code)

	rec := do(router, "/ping/w1?api_key=wrong", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"status":0,"msg":"Invalid API key"}`, rec.Body.String())

	require.Equal(t, http.StatusUnauthorized, do(router, "/ping/w1", "").Code)
}

func TestAPIKey_Hash(t *testing.T) {
	hash, err := cryptoutils.HashAPIKey("s3cret")
	require.NoError(t, err)
	a, err := New(Config{Log: zerolog.Nop(), APIKeyHash: string(hash)})
	require.NoError(t, err)

	require.True(t, a.Verify("s3cret"))
	require.Equal(t, 1, a.verified.Size())
	require.True(t, a.Verify("s3cret"))
	require.False(t, a.Verify("nope"))
	require.False(t, a.Verify(""))
	require.Equal(t, 1, a.verified.Size())
}

func TestAPIKey_HashRejectedKeysCompareOnce(t *testing.T) {
	hash, err := cryptoutils.HashAPIKey("s3cret")
	require.NoError(t, err)
	a, err := New(Config{Log: zerolog.Nop(), APIKeyHash: string(hash)})
	require.NoError(t, err)
	var compares int
	a.compare = func(hashed []byte, key string) error {
		compares++
		return cryptoutils.CompareHashAndKey(hashed, key)
	}

	for i := 0; i < 5; i++ {
		require.False(t, a.Verify("nope"))
	}
	require.Equal(t, 1, compares)
	require.Equal(t, 1, a.rejected.Size())

	require.True(t, a.Verify("s3cret"))
	require.True(t, a.Verify("s3cret"))
	require.Equal(t, 2, compares)
}

func TestAPIKey_OpenWhenUnconfigured(t *testing.T) {
	router := newRouter(t, Config{})
	require.Equal(t, http.StatusOK, do(router, "/ping/w1", "").Code)
}
