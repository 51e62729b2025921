// Package reqcache memoizes reads for the lifetime of a single request.
// A Store lives in the request context and is never shared across requests.
package reqcache

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

type entry struct {
	once  sync.Once
	value any
	err   error
}

// Store holds memoized values for one request.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// WithStore attaches a fresh Store to ctx.
func WithStore(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, New())
}

// FromContext returns the Store carried by ctx, if any.
func FromContext(ctx context.Context) *Store {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*Store)
	return s
}

// Middleware installs a Store into every request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithStore(c.Request.Context()))
		c.Next()
	}
}

// Forget drops key so the next Memo call reloads it.
func (s *Store) Forget(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Memo returns the cached result for key, calling load at most once per request.
// Without a Store in ctx it simply calls load. Errors are memoized too.
func Memo[T any](ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	s := FromContext(ctx)
	if s == nil {
		return load(ctx)
	}
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = load(ctx)
	})
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	v, ok := e.value.(T)
	if !ok {
		var zero T
		return zero, nil
	}
	return v, nil
}

// Forget is a context-level convenience for Store.Forget.
func Forget(ctx context.Context, key string) {
	FromContext(ctx).Forget(key)
}
