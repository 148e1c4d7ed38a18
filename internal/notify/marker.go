package notify

import (
	"context"
	"sync"
)

// MemoryMarker remembers emitted decision keys for the life of the process
type MemoryMarker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{seen: make(map[string]struct{})}
}

func (m *MemoryMarker) Mark(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}
