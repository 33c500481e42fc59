package store

import (
	"context"
	"sync"
)

// Memory is a process-local persister. SetSaveErr makes every Save fail,
// which tests use to exercise rollback.
type Memory struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
	saves   int
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith starts with a pre-existing blob.
func NewMemoryWith(data []byte) *Memory {
	return &Memory{data: append([]byte(nil), data...)}
}

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// SetSaveErr toggles the injected failure.
func (m *Memory) SetSaveErr(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

// Saves counts successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error {
	return nil
}
