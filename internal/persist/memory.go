package persist

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and the "memory" driver.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	value []byte
	at    time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem)}
}

func (m *Memory) Save(_ context.Context, key string, value []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: append([]byte(nil), value...), at: at}
	return nil
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return append([]byte(nil), it.value...), it.at, nil
}
