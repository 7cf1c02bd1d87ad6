// Package syncutil provides small concurrency helpers shared across the
// coordinator.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 256

// KeyedMutex serializes work per string key over a fixed pool of mutexes.
// The session manager uses one to order every intent (and the broadcast it
// emits) against a session ID. Memory stays bounded no matter how many keys
// are seen; two keys hashing to the same shard occasionally contend, which
// is harmless for correctness.
type KeyedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for the given key and returns the unlock func.
func (m *KeyedMutex) Lock(key string) func() {
	mu := &m.shards[shardIdx(key)]
	mu.Lock()
	return mu.Unlock
}

// CtxKeyedMutex is KeyedMutex with context-aware acquisition: a caller
// waiting on a busy key can bail when its context is cancelled. Locks are
// buffered channels so acquisition composes with select.
type CtxKeyedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

func (m *CtxKeyedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
			m.shards[i] <- struct{}{} // start unlocked
		}
	})
}

// Lock acquires the mutex for key, respecting context cancellation. On
// success it returns the unlock func; the caller must invoke it. On
// cancellation it returns nil and the context error.
func (m *CtxKeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.init()
	ch := m.shards[shardIdx(key)]

	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
