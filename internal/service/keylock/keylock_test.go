package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameKeySameStripe(t *testing.T) {
	s := New(8)
	assert.Equal(t, s.index("chat:1"), s.index("chat:1"))
	assert.Len(t, s.locks, 8)
	assert.Len(t, New(0).locks, defaultStripes)
}

func TestLockSerializesKey(t *testing.T) {
	s := New(4)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("group:-1:user:2")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
