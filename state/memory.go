package state

import (
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
)

// MemoryStore keeps state in process memory. Used in tests and when no state path is configured.
type MemoryStore struct {
	values cmap.ConcurrentMap

	// serializes Increment read-modify-write
	incLock *sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  cmap.New(),
		incLock: &sync.Mutex{},
	}
}

func memoryKey(scope, key string) string {
	return scope + "/" + key
}

// Get returns the value stored under scope and key.
func (ms *MemoryStore) Get(scope, key string) (string, bool, error) {

	value, ok := ms.values.Get(memoryKey(scope, key))
	if !ok {
		return "", false, nil
	}

	return value.(string), true, nil
}

// Set stores value under scope and key.
func (ms *MemoryStore) Set(scope, key, value string) error {
	ms.values.Set(memoryKey(scope, key), value)
	return nil
}

// Delete removes scope and key. Missing keys are ignored.
func (ms *MemoryStore) Delete(scope, key string) error {
	ms.values.Remove(memoryKey(scope, key))
	return nil
}

// Increment adds delta to the integer stored under scope and key.
func (ms *MemoryStore) Increment(scope, key string, delta int64) (int64, error) {

	ms.incLock.Lock()
	defer ms.incLock.Unlock()

	value, _, _ := ms.Get(scope, key)
	next, err := addToValue(value, delta)
	if err != nil {
		return 0, err
	}

	ms.values.Set(memoryKey(scope, key), strconv.FormatInt(next, 10))
	return next, nil
}

// Close is a no-op.
func (ms *MemoryStore) Close() error {
	return nil
}
