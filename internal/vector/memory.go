package vector

import (
	"context"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "in-memory" }

func (m *Memory) ReplaceAll(_ context.Context, records []Record) error {
	if _, err := ValidateBatch(records); err != nil {
		return err
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	m.mu.Lock()
	m.records = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(_ context.Context, embedding []float32, n int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Rank(m.records, embedding, n), nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
