// Package blob is the volatile coordination store shared between the
// coordinator, the device RPC surface and the heartbeat monitor. Model
// snapshots, gradient queues, stop flags and liveness keys all live here;
// everything in this store is reconstructible and safe to lose.
package blob

import (
	"context"
	"time"
)

// Store is the key/value and list surface the orchestrator needs. The
// production implementation is Redis; tests run against MemoryStore.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetTTL stores a value that expires after ttl.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string) error

	// RPush appends to the tail of a list, creating it if absent.
	RPush(ctx context.Context, key string, values ...string) error
	// LPop removes and returns the head of a list.
	LPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}
