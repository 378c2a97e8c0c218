package store

import (
	"context"
	"errors"
	"sync"
)

var errReadOnly = errors.New("write inside read-only transaction")

// MemoryBackend holds namespace values in a map. It is meant for tests and
// for running the server without a database file.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns a store backed by a fresh MemoryBackend.
func NewMemory(opts ...Option) *KVStore {
	return New(NewMemoryBackend(), opts...)
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(&memoryTx{data: b.data})
}

func (b *MemoryBackend) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &memoryTx{data: b.data, pending: map[string][]byte{}}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.pending {
		b.data[k] = v
	}
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// Raw returns the stored bytes for key, for inspection in tests.
func (b *MemoryBackend) Raw(key string) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]byte(nil), b.data[key]...)
}

// SetRaw overwrites key with value, bypassing encoding.
func (b *MemoryBackend) SetRaw(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), value...)
}

// Keys returns every stored key.
func (b *MemoryBackend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys
}

type memoryTx struct {
	data    map[string][]byte
	pending map[string][]byte
}

func (t *memoryTx) Get(key string) ([]byte, error) {
	if v, ok := t.pending[key]; ok {
		return v, nil
	}
	return t.data[key], nil
}

func (t *memoryTx) Put(key string, value []byte) error {
	if t.pending == nil {
		return errReadOnly
	}
	t.pending[key] = append([]byte(nil), value...)
	return nil
}
