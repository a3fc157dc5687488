package relay

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoPendingAcceptance сообщает, что у оператора нет начатого
// принятия заявки.
var ErrNoPendingAcceptance = errors.New("no pending acceptance for operator")

// PendingStore хранит записи "оператор X принимает заявителя Y" между
// нажатием кнопки и ответом с метаданными. Записи живут ограниченное
// время; повторный Put того же оператора перезаписывает старую.
type PendingStore interface {
	Put(ctx context.Context, operatorID, telegramID int64) error
	Get(ctx context.Context, operatorID int64) (int64, error)
	Delete(ctx context.Context, operatorID int64) error
}

type pendingEntry struct {
	telegramID int64
	expiresAt  time.Time
}

// MemoryPendingStore хранит записи принятия в памяти.
type MemoryPendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]pendingEntry
}

// NewMemoryPendingStore создает хранилище записей принятия в памяти.
func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{
		ttl:     ttl,
		entries: make(map[int64]pendingEntry),
	}
}

func (s *MemoryPendingStore) Put(_ context.Context, operatorID, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[operatorID] = pendingEntry{telegramID: telegramID, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryPendingStore) Get(_ context.Context, operatorID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[operatorID]
	if !ok {
		return 0, ErrNoPendingAcceptance
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, operatorID)
		return 0, ErrNoPendingAcceptance
	}
	return entry.telegramID, nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, operatorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, operatorID)
	return nil
}

const pendingKeyPrefix = "pending-accept:"

// RedisPendingStore хранит записи принятия в Redis с TTL, так что
// сервис остается без состояния между перезапусками.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingStore создает хранилище записей принятия в Redis.
func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{client: client, ttl: ttl}
}

func (s *RedisPendingStore) key(operatorID int64) string {
	return pendingKeyPrefix + strconv.FormatInt(operatorID, 10)
}

func (s *RedisPendingStore) Put(ctx context.Context, operatorID, telegramID int64) error {
	return s.client.Set(ctx, s.key(operatorID), strconv.FormatInt(telegramID, 10), s.ttl).Err()
}

func (s *RedisPendingStore) Get(ctx context.Context, operatorID int64) (int64, error) {
	value, err := s.client.Get(ctx, s.key(operatorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNoPendingAcceptance
		}
		return 0, err
	}
	telegramID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrNoPendingAcceptance
	}
	return telegramID, nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, operatorID int64) error {
	return s.client.Del(ctx, s.key(operatorID)).Err()
}
