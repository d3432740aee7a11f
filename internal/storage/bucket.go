// Package storage keeps encrypted document contents in a gocloud.dev bucket
// backed by a local directory or by memory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned by Get for an unknown location.
var ErrNotFound = errors.New("blob not found")

// KeyPrefix namespaces every stored document.
const KeyPrefix = "documents/"

// NewKey returns a fresh, never reused location.
func NewKey() string {
	return path.Join(KeyPrefix, uuid.NewString())
}

// Bucket stores opaque byte blobs under generated keys.
type Bucket struct {
	bucket *blob.Bucket
}

// OpenLocal stores blobs as files below dir, creating it when missing.
func OpenLocal(dir string) (*Bucket, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	b, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open file bucket: %w", err)
	}
	return &Bucket{bucket: b}, nil
}

// OpenMemory keeps blobs in process memory. Contents vanish on exit.
func OpenMemory() *Bucket {
	return &Bucket{bucket: memblob.OpenBucket(nil)}
}

// Put writes data under a fresh location and returns it.
func (b *Bucket) Put(ctx context.Context, data []byte) (string, error) {
	key := NewKey()
	if err := b.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/octet-stream"}); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return key, nil
}

// Get reads the blob stored at location.
func (b *Bucket) Get(ctx context.Context, location string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, location)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("read blob %s: %w", location, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", location, err)
	}
	return data, nil
}

// Delete removes the blob at location. A missing blob is not an error.
func (b *Bucket) Delete(ctx context.Context, location string) error {
	if err := b.bucket.Delete(ctx, location); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete blob %s: %w", location, err)
	}
	return nil
}

// Close releases the underlying bucket.
func (b *Bucket) Close() error {
	return b.bucket.Close()
}
