package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is a process-local Store, used by tests and the memory driver.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Driver() string { return DriverMemory }

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("get: %w", ErrInvalidKey)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set: %w", ErrInvalidKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
