// Package settings хранит изменяемые на лету параметры бота.
package settings

import (
	"context"
	"errors"
	"sync"
)

// KeyStaffGroupID — идентификатор группы модераторов, закрепленный
// командой /setgroup. Имеет приоритет над переменной окружения.
const KeyStaffGroupID = "staff_group_id"

var ErrSettingNotFound = errors.New("setting not found")

// Store хранит пары ключ-значение.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore хранит настройки в памяти.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore создает хранилище настроек в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", ErrSettingNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
