package fixedpoint

import (
	"container/list"
	"math/big"
	"sync"
)

// sqrtMemo is a small LRU for tick -> sqrtPriceX96 conversions. Grid values
// are immutable, so entries never expire; the memo hands out copies so
// callers can mutate results freely.
type sqrtMemo struct {
	mu      sync.Mutex
	maxSize int
	items   map[int32]*list.Element
	lru     *list.List
}

type memoEntry struct {
	tick  int32
	value *big.Int
}

var memo = newSqrtMemo(4096)

func newSqrtMemo(maxSize int) *sqrtMemo {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &sqrtMemo{
		maxSize: maxSize,
		items:   make(map[int32]*list.Element),
		lru:     list.New(),
	}
}

func (m *sqrtMemo) get(tick int32) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.items[tick]
	if !ok {
		return nil
	}
	m.lru.MoveToFront(element)
	return new(big.Int).Set(element.Value.(*memoEntry).value)
}

func (m *sqrtMemo) put(tick int32, value *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.items[tick]; ok {
		m.lru.MoveToFront(element)
		return
	}

	m.items[tick] = m.lru.PushFront(&memoEntry{tick: tick, value: value})

	if m.lru.Len() > m.maxSize {
		oldest := m.lru.Back()
		m.lru.Remove(oldest)
		delete(m.items, oldest.Value.(*memoEntry).tick)
	}
}
