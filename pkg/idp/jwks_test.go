package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJWK(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kid": kid,
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var out []map[string]string
		for kid, pub := range keys {
			out = append(out, encodeJWK(kid, pub))
		}
		out = append(out, map[string]string{"kid": "enc-key", "kty": "RSA", "use": "enc", "n": "AQAB", "e": "AQAB"})
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKeyCacheFetchesOnMissAndCaches(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int32
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &priv.PublicKey}, &hits)

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL, Timeout: time.Second})
	key, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, key.N.Cmp(priv.PublicKey.N))
	assert.Equal(t, priv.PublicKey.E, key.E)

	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestKeyCacheUnknownKidRefetchesOnce(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int32
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &priv.PublicKey}, &hits)

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL, RefetchInterval: time.Hour})
	_, err = cache.Key(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(1), hits.Load())

	// the next refetch slot lies beyond the timeout, so the miss fails without a request
	_, err = cache.Key(context.Background(), "still-missing")
	require.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(1), hits.Load())

	// the first refetch still populated kid-1
	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
}

func TestKeyCacheConcurrentMisses(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int32
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &priv.PublicKey}, &hits)

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Key(context.Background(), "kid-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int32(1), hits.Load())
}

func TestKeyCacheRotationAfterUnknownKid(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		keys = map[string]*rsa.PublicKey{"kid-1": &oldKey.PublicKey}
		hits atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		defer mu.Unlock()
		out := make([]map[string]string, 0, len(keys))
		for kid, pub := range keys {
			out = append(out, encodeJWK(kid, pub))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": out})
	}))
	defer srv.Close()

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL, Timeout: 2 * time.Second, RefetchInterval: 200 * time.Millisecond})
	_, err = cache.Key(context.Background(), "bogus")
	require.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(1), hits.Load())

	mu.Lock()
	keys["kid-new"] = &newKey.PublicKey
	mu.Unlock()

	key, err := cache.Key(context.Background(), "kid-new")
	require.NoError(t, err)
	assert.Equal(t, 0, key.N.Cmp(newKey.PublicKey.N))
	assert.Equal(t, int32(2), hits.Load())
}

func TestKeyCacheUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL})
	_, err := cache.Key(context.Background(), "kid-1")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRSAFromJWKRejectsBadExponent(t *testing.T) {
	_, err := rsaFromJWK("AQAB", "AQ")
	require.Error(t, err)
	_, err = rsaFromJWK("!!", "AQAB")
	require.Error(t, err)
}
