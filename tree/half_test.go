package tree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeHalfPushNewWithinCapacity(t *testing.T) {
	h := NewTreeHalf(4, false)
	for i := 0; i < 4; i++ {
		p := h.PushNew(uint16(i), 0.1)
		assert.False(t, p.IsNull())
		assert.EqualValues(t, i, p.Index())
	}
	assert.Equal(t, 4, h.Used())
}

func TestTreeHalfPushNewOverflowReturnsNull(t *testing.T) {
	h := NewTreeHalf(2, false)
	h.PushNew(0, 0)
	h.PushNew(1, 0)
	p := h.PushNew(2, 0)
	assert.True(t, p.IsNull())
}

func TestTreeHalfReset(t *testing.T) {
	h := NewTreeHalf(2, true)
	h.PushNew(0, 0)
	h.Reset()
	assert.Equal(t, 0, h.Used())
	p := h.PushNew(5, 0.3)
	assert.False(t, p.IsNull())
	assert.True(t, p.Half())
}

func TestTreeHalfConcurrentPushNewExactCount(t *testing.T) {
	const capacity = 1000
	h := NewTreeHalf(capacity, false)
	var wg sync.WaitGroup
	var successes int64
	var mu sync.Mutex
	for i := 0; i < capacity*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := h.PushNew(0, 0)
			if !p.IsNull() {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, capacity, successes)
}
