package middleware

import (
	"context"
	"fmt"

	"github.com/aretw0/moments/pkg/ports"
)

// Middleware allows wrapping a Storage to add behavior.
type Middleware func(ports.Storage) ports.Storage

// Chain wraps store with mws. The first middleware is the outermost one:
// on write it sees the plain value first, on read it sees it last.
func Chain(store ports.Storage, mws ...Middleware) ports.Storage {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// valueStore applies a symmetric value transform around a Storage.
type valueStore struct {
	next   ports.Storage
	encode func(string) (string, error)
	decode func(string) (string, error)
}

func (s *valueStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.next.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return s.decode(v)
}

func (s *valueStore) SetMany(ctx context.Context, entries map[string]string) error {
	encoded := make(map[string]string, len(entries))
	for k, v := range entries {
		ev, err := s.encode(v)
		if err != nil {
			return fmt.Errorf("failed to encode %q: %w", k, err)
		}
		encoded[k] = ev
	}
	return s.next.SetMany(ctx, encoded)
}

func (s *valueStore) DeleteMany(ctx context.Context, keys ...string) error {
	return s.next.DeleteMany(ctx, keys...)
}

func (s *valueStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.next.Keys(ctx, prefix)
}
