// Package draft maps DraftRecords onto the five-key storage layout used by the editor.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// lockTTL bounds how long a crashed writer can hold a draft slot.
const lockTTL = 30 * time.Second

// Repository reads and writes draft records.
// It is the only component that knows the persisted key layout.
type Repository struct {
	storage ports.Storage
	locker  ports.DistributedLocker
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Repository.
type Option func(*Repository)

// WithLocker serializes writes to the same slot across instances.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(r *Repository) {
		r.locker = locker
	}
}

// WithLogger configures a logger for the Repository.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a Repository on top of storage.
func NewRepository(storage ports.Storage, opts ...Option) *Repository {
	r := &Repository{
		storage: storage,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the record of key.
// Returns domain.ErrDraftNotFound if no scene content is stored.
// A record whose sidecars are missing or unreadable is still returned; the
// zero SavedAt makes it stale for the recovery policy.
func (r *Repository) Load(ctx context.Context, key domain.DraftKey) (*domain.DraftRecord, error) {
	content, err := r.storage.Get(ctx, key.Base())
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, domain.ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to read draft %s: %w", key, err)
	}

	rec := &domain.DraftRecord{SceneContent: content}

	if ts, err := r.sidecar(ctx, key.Timestamp()); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			rec.SavedAt = t
		} else {
			r.logger.Warn("Unreadable draft timestamp", "key", key.String(), "value", ts)
		}
	}
	if by, err := r.sidecar(ctx, key.SavedBy()); err == nil {
		rec.SavedBy = domain.SaveTrigger(by)
	}
	if h, err := r.sidecar(ctx, key.Hash()); err == nil {
		rec.ContentHash = h
	}
	if sz, err := r.sidecar(ctx, key.Size()); err == nil {
		rec.ByteSize, _ = strconv.Atoi(sz)
	}
	return rec, nil
}

func (r *Repository) sidecar(ctx context.Context, k string) (string, error) {
	v, err := r.storage.Get(ctx, k)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		r.logger.Warn("Failed to read draft sidecar", "key", k, "err", err)
	}
	return v, err
}

// Write stores content as the latest draft of key.
// The hash and size are always derived from content here, never supplied by callers.
func (r *Repository) Write(ctx context.Context, key domain.DraftKey, content string, trigger domain.SaveTrigger) (domain.DraftRecord, error) {
	rec := domain.NewDraftRecord(content, trigger, r.now())

	err := r.withLock(ctx, key, func(ctx context.Context) error {
		return r.storage.SetMany(ctx, map[string]string{
			key.Base():      rec.SceneContent,
			key.Timestamp(): rec.SavedAt.Format(time.RFC3339Nano),
			key.SavedBy():   string(rec.SavedBy),
			key.Hash():      rec.ContentHash,
			key.Size():      strconv.Itoa(rec.ByteSize),
		})
	})
	if err != nil {
		return domain.DraftRecord{}, fmt.Errorf("failed to write draft %s: %w", key, err)
	}
	return rec, nil
}

// Delete removes the record and all its sidecars.
func (r *Repository) Delete(ctx context.Context, key domain.DraftKey) error {
	err := r.withLock(ctx, key, func(ctx context.Context) error {
		return r.storage.DeleteMany(ctx, key.All()...)
	})
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", key, err)
	}
	return nil
}

// StoredHash returns the digest of the currently stored draft, or "" if none.
func (r *Repository) StoredHash(ctx context.Context, key domain.DraftKey) (string, error) {
	h, err := r.storage.Get(ctx, key.Hash())
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return h, nil
}

// List returns the keys of every stored draft, sorted by user then media type.
func (r *Repository) List(ctx context.Context) ([]domain.DraftKey, error) {
	var out []domain.DraftKey
	for _, prefix := range []string{domain.DraftKeyPrefix, domain.VideoDraftKeyPrefix} {
		keys, err := r.storage.Keys(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list drafts: %w", err)
		}
		for _, k := range keys {
			if dk, ok := ParseKey(k); ok {
				out = append(out, dk)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].MediaType < out[j].MediaType
	})
	return out, nil
}

// ParseKey recognizes a scene content key and returns its DraftKey.
// Sidecar keys are not recognized.
func ParseKey(k string) (domain.DraftKey, bool) {
	media := domain.MediaImage
	rest, ok := strings.CutPrefix(k, domain.DraftKeyPrefix)
	if !ok {
		if rest, ok = strings.CutPrefix(k, domain.VideoDraftKeyPrefix); !ok {
			return domain.DraftKey{}, false
		}
		media = domain.MediaVideo
	}
	user, ok := strings.CutSuffix(rest, "-latest")
	if !ok || user == "" {
		return domain.DraftKey{}, false
	}
	return domain.DraftKey{UserID: user, MediaType: media}, true
}

func (r *Repository) withLock(ctx context.Context, key domain.DraftKey, fn func(context.Context) error) error {
	if r.locker == nil {
		return fn(ctx)
	}
	unlock, err := r.locker.Lock(ctx, key.Base(), lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			r.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"key", key.String(),
				"err", err,
			)
		}
	}()
	return fn(ctx)
}
