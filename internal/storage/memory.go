package storage

import (
	"context"
	"sync"

	"gastos/internal/core"
)

// MemoryStore keeps the serialized collection in process. It encodes on
// save so callers observe the same normalization as the durable stores.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, c core.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := core.EncodeCollection(c)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (core.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return core.Collection{}, m.err
	}
	if m.data == nil {
		return core.NewCollection(), nil
	}
	return core.DecodeCollection(m.data)
}

// FailWith makes every later call return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Close() error { return nil }
