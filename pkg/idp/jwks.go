// Package idp holds the identity provider's signing key cache.
package idp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownKey means the key id is absent even after a refetch.
	ErrUnknownKey = errors.New("signing key not found")
	// ErrUnavailable wraps transport and decoding failures talking to the JWKS endpoint.
	ErrUnavailable = errors.New("jwks endpoint unavailable")
)

// KeyCache maps key ids to RSA public keys. Entries are only ever added.
// A miss triggers one refetch shared by concurrent callers; refetches are
// spaced by the limiter, and a caller waits for its turn up to the timeout.
type KeyCache struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger

	refreshMu sync.Mutex

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// KeyCacheConfig configures the cache.
type KeyCacheConfig struct {
	URL             string
	Timeout         time.Duration
	RefetchInterval time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// NewKeyCache builds an empty cache; keys are fetched lazily.
func NewKeyCache(cfg KeyCacheConfig) *KeyCache {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RefetchInterval > 0 {
		limit = rate.Every(cfg.RefetchInterval)
	}
	return &KeyCache{
		url:     cfg.URL,
		client:  cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		keys:    make(map[string]*rsa.PublicKey),
	}
}

// Key returns the public key for kid, refetching the JWKS document once on a miss.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	// another caller may have refetched while we queued
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.limiter.Wait(waitCtx); err != nil {
		c.logger.Debug("jwks refetch throttled", zap.String("kid", kid), zap.Error(err))
		return nil, ErrUnknownKey
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// Len reports the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *KeyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *KeyCache) refresh(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("%w: url not configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var payload struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}

	fetched := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaFromJWK(k.N, k.E)
		if err != nil {
			c.logger.Warn("skipping malformed jwk", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		fetched[k.Kid] = pub
	}

	c.mu.Lock()
	for kid, pub := range fetched {
		c.keys[kid] = pub
	}
	c.mu.Unlock()
	c.logger.Debug("jwks refreshed", zap.Int("fetched", len(fetched)))
	return nil
}

func rsaFromJWK(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 || len(eb) > 4 {
		return nil, errors.New("invalid key parameters")
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
