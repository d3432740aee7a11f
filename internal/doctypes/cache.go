// Package doctypes holds the document type labels shown in archive READMEs.
// The table is fetched once at startup; readers wait for that first
// population and read it without blocking afterwards.
package doctypes

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
)

// ErrAlreadyCompleted is returned by a second call to Complete.
var ErrAlreadyCompleted = errors.New("doctypes: cache already completed")

// Cache is a single-assignment value. The zero value is not usable; call New.
type Cache struct {
	mu    sync.Mutex
	done  chan struct{}
	value map[int]string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{done: make(chan struct{})}
}

// Wait blocks until Complete has been called or ctx ends.
func (c *Cache) Wait(ctx context.Context) (map[int]string, error) {
	select {
	case <-c.done:
		return c.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether Complete has been called.
func (c *Cache) Ready() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete stores value and releases every waiter. It may be called once.
func (c *Cache) Complete(value map[int]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Ready() {
		return ErrAlreadyCompleted
	}
	c.value = maps.Clone(value)
	if c.value == nil {
		c.value = map[int]string{}
	}
	close(c.done)
	return nil
}

// Source fetches the type table from the records system.
type Source interface {
	GetDocumentTypes(ctx context.Context) (map[int]string, error)
}

// Populate fetches the table once and completes the cache. A failed fetch
// completes it with an empty table so readers fall back to raw type ids
// instead of waiting forever.
func Populate(ctx context.Context, c *Cache, src Source, logger *slog.Logger) error {
	types, err := src.GetDocumentTypes(ctx)
	if err != nil {
		logger.Error("fetch document types failed; labels unavailable",
			slog.String("error", err.Error()))
		types = nil
	} else {
		logger.Info("document types loaded", slog.Int("count", len(types)))
	}
	return c.Complete(types)
}
