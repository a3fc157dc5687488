package relay

import (
	"context"
	"sync"
	"time"
)

// MemoryMappingStore хранит связи заявитель-тема в памяти.
type MemoryMappingStore struct {
	mu          sync.RWMutex
	byApplicant map[int64]ThreadMapping
	byThread    map[int64]ThreadMapping
}

// NewMemoryMappingStore создает хранилище связей в памяти.
func NewMemoryMappingStore() *MemoryMappingStore {
	return &MemoryMappingStore{
		byApplicant: make(map[int64]ThreadMapping),
		byThread:    make(map[int64]ThreadMapping),
	}
}

func (s *MemoryMappingStore) GetByApplicant(_ context.Context, telegramID int64) (ThreadMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byApplicant[telegramID]
	if !ok {
		return ThreadMapping{}, ErrMappingNotFound
	}
	return m, nil
}

func (s *MemoryMappingStore) GetByThread(_ context.Context, threadID int64) (ThreadMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byThread[threadID]
	if !ok {
		return ThreadMapping{}, ErrMappingNotFound
	}
	return m, nil
}

func (s *MemoryMappingStore) Insert(_ context.Context, m ThreadMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byApplicant[m.TelegramID]; ok {
		return ErrMappingExists
	}
	if _, ok := s.byThread[m.ThreadID]; ok {
		return ErrMappingExists
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.byApplicant[m.TelegramID] = m
	s.byThread[m.ThreadID] = m
	return nil
}

func (s *MemoryMappingStore) Delete(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byApplicant[telegramID]
	if !ok {
		return nil
	}
	delete(s.byApplicant, telegramID)
	delete(s.byThread, m.ThreadID)
	return nil
}

// MemoryLogStore хранит журнал зеркалированных сообщений в памяти.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []MessageLogEntry
}

// NewMemoryLogStore создает журнал в памяти.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) Insert(_ context.Context, e MessageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.entries {
		if stored.StaffMessageID == e.StaffMessageID || stored.ApplicantMessageID == e.ApplicantMessageID {
			return ErrLogEntryExists
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryLogStore) Lookup(_ context.Context, messageID int64) (MessageLogEntry, Side, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.StaffMessageID == messageID {
			return e, SideStaff, nil
		}
	}
	for _, e := range s.entries {
		if e.ApplicantMessageID == messageID {
			return e, SideApplicant, nil
		}
	}
	return MessageLogEntry{}, 0, ErrLogEntryNotFound
}

func (s *MemoryLogStore) Delete(_ context.Context, e MessageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, stored := range s.entries {
		if stored.StaffMessageID == e.StaffMessageID && stored.ApplicantMessageID == e.ApplicantMessageID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Entries возвращает копию журнала (для тестов).
func (s *MemoryLogStore) Entries() []MessageLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MessageLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// MemoryReactionStore хранит реакции в памяти.
type MemoryReactionStore struct {
	mu      sync.Mutex
	records map[[2]int64]ReactionRecord
}

// NewMemoryReactionStore создает хранилище реакций в памяти.
func NewMemoryReactionStore() *MemoryReactionStore {
	return &MemoryReactionStore{records: make(map[[2]int64]ReactionRecord)}
}

func (s *MemoryReactionStore) Upsert(_ context.Context, r ReactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[[2]int64{r.MessageID, r.ReactorID}] = r
	return nil
}

// Get возвращает запись реакции (для тестов).
func (s *MemoryReactionStore) Get(messageID, reactorID int64) (ReactionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[[2]int64{messageID, reactorID}]
	return r, ok
}
