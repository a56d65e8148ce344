package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	cache := New()
	assert.NotNil(t, cache)
	assert.NotNil(t, cache.items)
	assert.Empty(t, cache.items)
}

func TestMemory_PutAndGet(t *testing.T) {
	cache := New()
	now := time.Now()

	stored := cache.Put(Entry{Key: "k1", Vector: []float32{1, 2, 3}, CreatedAt: now})
	assert.True(t, stored)

	entry, exists := cache.Get("k1")
	assert.True(t, exists)
	assert.Equal(t, []float32{1, 2, 3}, entry.Vector)
	assert.Equal(t, now, entry.CreatedAt)

	_, exists = cache.Get("nonexistent")
	assert.False(t, exists)
}

func TestMemory_PutIsWriteOnce(t *testing.T) {
	cache := New()

	assert.True(t, cache.Put(Entry{Key: "k", Vector: []float32{1}}))
	assert.False(t, cache.Put(Entry{Key: "k", Vector: []float32{2}}))

	entry, _ := cache.Get("k")
	assert.Equal(t, []float32{1}, entry.Vector)
}

func TestMemory_PutCopiesVector(t *testing.T) {
	cache := New()
	vec := []float32{1, 2}
	cache.Put(Entry{Key: "k", Vector: vec})

	vec[0] = 99

	entry, _ := cache.Get("k")
	assert.Equal(t, float32(1), entry.Vector[0])
}

func TestMemory_Delete(t *testing.T) {
	cache := New()
	cache.Put(Entry{Key: "k", Vector: []float32{1}})

	cache.Delete("k")
	_, exists := cache.Get("k")
	assert.False(t, exists)

	// Delete non-existent key (should not panic)
	cache.Delete("nonexistent")
}

func TestMemory_ClearAndLen(t *testing.T) {
	cache := New()
	for i := 0; i < 3; i++ {
		cache.Put(Entry{Key: fmt.Sprintf("k%d", i), Vector: []float32{float32(i)}})
	}
	assert.Equal(t, 3, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	cache.mutex.RLock()
	assert.Empty(t, cache.items)
	cache.mutex.RUnlock()
}

func TestMemory_Prune(t *testing.T) {
	cache := New()
	now := time.Now()

	cache.Put(Entry{Key: "old", Vector: []float32{1}, CreatedAt: now.Add(-48 * time.Hour)})
	cache.Put(Entry{Key: "edge", Vector: []float32{1}, CreatedAt: now.Add(-24 * time.Hour)})
	cache.Put(Entry{Key: "new", Vector: []float32{1}, CreatedAt: now})

	removed := cache.Prune(now.Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)

	_, exists := cache.Get("old")
	assert.False(t, exists)
	_, exists = cache.Get("edge")
	assert.True(t, exists)
	_, exists = cache.Get("new")
	assert.True(t, exists)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	cache := New()
	iterations := 100
	var wg sync.WaitGroup

	wg.Add(iterations * 3)
	for i := 0; i < iterations; i++ {
		go func(n int) {
			defer wg.Done()
			cache.Put(Entry{Key: "key", Vector: []float32{float32(n)}})
		}(i)

		go func() {
			defer wg.Done()
			cache.Get("key")
		}()

		go func(n int) {
			defer wg.Done()
			if n%10 == 0 {
				cache.Delete("key")
			}
		}(i)
	}
	wg.Wait()

	cache.Put(Entry{Key: "final", Vector: []float32{7}})
	entry, exists := cache.Get("final")
	assert.True(t, exists)
	assert.Equal(t, []float32{7}, entry.Vector)
}

func BenchmarkMemory_Get(b *testing.B) {
	cache := New()
	cache.Put(Entry{Key: "key", Vector: make([]float32, 1536)})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("key")
	}
}
