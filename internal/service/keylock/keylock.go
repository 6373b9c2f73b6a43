package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Striped — набор мьютексов, выбираемых по хэшу ключа. Один ключ всегда попадает
// в один и тот же мьютекс, поэтому операции над ним выполняются строго по очереди.
type Striped struct {
	locks []sync.Mutex
}

func New(stripes int) *Striped {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &Striped{locks: make([]sync.Mutex, stripes)}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (s *Striped) Lock(key string) func() {
	m := &s.locks[s.index(key)]
	m.Lock()
	return m.Unlock
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.locks)))
}
