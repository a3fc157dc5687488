package applicant

import (
	"context"
	"errors"
	"time"
)

// Status — этап рассмотрения заявки. Значения совпадают со строками,
// которые видит админ-панель.
type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusAccepted   Status = "Accepted"
	StatusDeclined   Status = "Declined"
)

// Terminal сообщает, завершает ли статус рассмотрение заявки.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Valid сообщает, является ли строка известным статусом.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Applicant — заявка, поданная через анкету бота.
type Applicant struct {
	TelegramID   int64
	Name         string
	Age          int
	City         string
	Username     string
	Phone        string
	Status       Status
	AcceptedCity string
	AcceptedDate *time.Time
	CreatedAt    time.Time
}

// DisplayName возвращает имя для заголовка темы форума.
func (a Applicant) DisplayName() string {
	if a.Username != "" {
		return a.Name + " (@" + a.Username + ")"
	}
	return a.Name
}

var (
	ErrApplicantNotFound = errors.New("applicant not found")
	ErrApplicantExists   = errors.New("applicant already exists")
)

// Store хранит заявки.
type Store interface {
	Create(ctx context.Context, a Applicant) error
	Get(ctx context.Context, telegramID int64) (Applicant, error)
	Exists(ctx context.Context, telegramID int64) (bool, error)
	List(ctx context.Context, status Status) ([]Applicant, error)
	UpdateStatus(ctx context.Context, telegramID int64, status Status) error
	MarkInProgressIfNew(ctx context.Context, telegramID int64) error
	Accept(ctx context.Context, telegramID int64, city string, date time.Time) error
	Delete(ctx context.Context, telegramID int64) error
}
