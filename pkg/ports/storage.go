package ports

import "context"

// Storage is durable client key/value storage.
// Values are opaque strings; adapters must not interpret them.
type Storage interface {
	// Get returns the value stored under key.
	// Returns domain.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// SetMany writes all entries atomically: either every entry is stored or none is.
	SetMany(ctx context.Context, entries map[string]string) error

	// DeleteMany removes the keys. Missing keys are not an error.
	DeleteMany(ctx context.Context, keys ...string) error

	// Keys lists the keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
