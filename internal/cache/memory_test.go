package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTierPutGetRemove(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryTier(0, clock.Now)

	m.Put("a", testAsset("a", "payload"), time.Minute)
	entry, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), entry.asset.Data)
	assert.True(t, m.Contains("a"))
	assert.Equal(t, 1, m.Count())

	m.Remove("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
	m.Remove("missing")
}

func TestMemoryTierExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryTier(0, clock.Now)

	m.Put("a", testAsset("a", "x"), time.Second)
	clock.Advance(999 * time.Millisecond)
	_, ok := m.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count(), "expired entry should be evicted on read")
}

func TestMemoryTierNegativeEntries(t *testing.T) {
	m := NewMemoryTier(0, nil)
	m.Put("neg", nil, time.Minute)

	entry, ok := m.Get("neg")
	require.True(t, ok)
	assert.True(t, entry.negative())
	assert.False(t, m.Contains("neg"))
}

func TestMemoryTierIgnoresNonPositiveTTL(t *testing.T) {
	m := NewMemoryTier(0, nil)
	m.Put("a", testAsset("a", "x"), 0)
	assert.Equal(t, 0, m.Count())
}

func TestMemoryTierBoundsEntries(t *testing.T) {
	m := NewMemoryTier(memoryShardCount, nil)
	for i := 0; i < 10*memoryShardCount; i++ {
		m.Put(fmt.Sprintf("key-%d", i), testAsset("x", "x"), time.Minute)
	}
	assert.LessOrEqual(t, m.Count(), memoryShardCount)
}

func TestMemoryTierClearAndConcurrency(t *testing.T) {
	m := NewMemoryTier(0, nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d-%d", w, i%20)
				m.Put(key, testAsset(key, "v"), time.Minute)
				m.Get(key)
				if i%7 == 0 {
					m.Remove(key)
				}
			}
		}(w)
	}
	wg.Wait()

	m.Clear()
	assert.Equal(t, 0, m.Count())
}
