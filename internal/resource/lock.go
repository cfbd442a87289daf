package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cruciblehq/zkb/internal/request"
	"github.com/gofrs/flock"
)

// Delay between attempts to acquire a file lock.
const lockRetryDelay = 250 * time.Millisecond

// Provides mutual exclusion for the resolution of a key.
//
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key request.ResourceKey) (unlock func(), err error)
}

// Does not lock. Concurrent processes resolving the same key may both fetch
// it and overwrite each other's cache directory.
type NopLocker struct{}

// Implements [Locker].
func (NopLocker) Lock(context.Context, request.ResourceKey) (func(), error) {
	return func() {}, nil
}

// Serializes resolution across processes with advisory file locks.
type FileLocker struct {
	Dir string // Directory holding one lock file per key.
}

// Implements [Locker].
//
// Blocks until the lock is acquired or ctx is done.
func (l FileLocker) Lock(ctx context.Context, key request.ResourceKey) (func(), error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(l.Dir, lockName(key)))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", key)
	}

	return func() { fl.Unlock() }, nil
}

// Returns a filesystem-safe lock file name for key.
func lockName(key request.ResourceKey) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(string(key.Base)) + "-" + r.Replace(key.KernelVersion) + ".lock"
}
