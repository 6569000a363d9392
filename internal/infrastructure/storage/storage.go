package storage

import (
	"context"
	"encoding/json"
	"sync"

	"tickerwatch/internal/application/port"
)

// EncodeList marshals a symbol list; ok is false when the list is empty and the
// key should be removed instead.
func EncodeList(values []string) (payload string, ok bool, err error) {
	if len(values) == 0 {
		return "", false, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// InMemoryKV is a process-local KVStore
type InMemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryKV creates a new in-memory store
func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{data: make(map[string]string)}
}

func (s *InMemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *InMemoryKV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *InMemoryKV) SetOrClear(ctx context.Context, key string, values []string) error {
	payload, ok, err := EncodeList(values)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		delete(s.data, key)
		return nil
	}
	s.data[key] = payload
	return nil
}

func (s *InMemoryKV) Close() error {
	return nil
}

var _ port.KVStore = (*InMemoryKV)(nil)
