package applicant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore хранит заявки в памяти.
type MemoryStore struct {
	mu         sync.RWMutex
	applicants map[int64]Applicant
}

// NewMemoryStore создает хранилище заявок в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{applicants: make(map[int64]Applicant)}
}

func (s *MemoryStore) Create(_ context.Context, a Applicant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applicants[a.TelegramID]; ok {
		return ErrApplicantExists
	}
	if a.Status == "" {
		a.Status = StatusNew
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.applicants[a.TelegramID] = a
	return nil
}

func (s *MemoryStore) Get(_ context.Context, telegramID int64) (Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applicants[telegramID]
	if !ok {
		return Applicant{}, ErrApplicantNotFound
	}
	return a, nil
}

func (s *MemoryStore) Exists(_ context.Context, telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applicants[telegramID]
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context, status Status) ([]Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Applicant, 0, len(s.applicants))
	for _, a := range s.applicants {
		if status != "" && a.Status != status {
			continue
		}
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, telegramID int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applicants[telegramID]
	if !ok {
		return ErrApplicantNotFound
	}
	a.Status = status
	s.applicants[telegramID] = a
	return nil
}

func (s *MemoryStore) MarkInProgressIfNew(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applicants[telegramID]
	if !ok {
		return ErrApplicantNotFound
	}
	if a.Status != StatusNew {
		return nil
	}
	a.Status = StatusInProgress
	s.applicants[telegramID] = a
	return nil
}

func (s *MemoryStore) Accept(_ context.Context, telegramID int64, city string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applicants[telegramID]
	if !ok {
		return ErrApplicantNotFound
	}
	a.Status = StatusAccepted
	a.AcceptedCity = city
	a.AcceptedDate = &date
	s.applicants[telegramID] = a
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applicants[telegramID]; !ok {
		return ErrApplicantNotFound
	}
	delete(s.applicants, telegramID)
	return nil
}
