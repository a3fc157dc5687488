package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"intake_bot/internal/applicant"
)

// ErrBadAcceptanceInput сообщает, что метаданные принятия не удалось
// разобрать; запись принятия при этом сохраняется для повторной
// попытки.
var ErrBadAcceptanceInput = errors.New("malformed acceptance input, expected city:YYYY-MM-DD")

// StatusCoordinator применяет переходы статуса заявки и гарантирует
// снос темы на каждом терминальном переходе, из какой бы точки входа
// он ни был вызван.
type StatusCoordinator struct {
	applicants applicant.Store
	directory  *Directory
	pending    PendingStore
	logger     *slog.Logger
}

// NewStatusCoordinator создает координатор статусов.
func NewStatusCoordinator(applicants applicant.Store, directory *Directory, pending PendingStore, logger *slog.Logger) *StatusCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCoordinator{
		applicants: applicants,
		directory:  directory,
		pending:    pending,
		logger:     logger,
	}
}

// SetStatus применяет статус и, для терминальных, закрывает тему.
// Повтор того же терминального статуса безвреден: Close без связи —
// пустая операция.
func (c *StatusCoordinator) SetStatus(ctx context.Context, telegramID int64, status applicant.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	if err := c.applicants.UpdateStatus(ctx, telegramID, status); err != nil {
		return err
	}
	if status.Terminal() {
		return c.directory.Close(ctx, telegramID)
	}
	return nil
}

// Decline отклоняет заявку.
func (c *StatusCoordinator) Decline(ctx context.Context, telegramID int64) error {
	return c.SetStatus(ctx, telegramID, applicant.StatusDeclined)
}

// MarkInProgress переводит New в In Progress; остальные статусы не
// трогает.
func (c *StatusCoordinator) MarkInProgress(ctx context.Context, telegramID int64) error {
	return c.applicants.MarkInProgressIfNew(ctx, telegramID)
}

// BeginAcceptance запоминает, что оператор начал принятие заявителя.
// Сама заявка пока не меняется.
func (c *StatusCoordinator) BeginAcceptance(ctx context.Context, operatorID, telegramID int64) error {
	if _, err := c.applicants.Get(ctx, telegramID); err != nil {
		return err
	}
	return c.pending.Put(ctx, operatorID, telegramID)
}

// CompleteAcceptance разбирает ответ оператора с метаданными и
// завершает принятие. Неразбираемый ввод оставляет запись принятия на
// месте и ничего не пишет в заявку. При успехе запись принятия
// удаляется до коммита в базу.
func (c *StatusCoordinator) CompleteAcceptance(ctx context.Context, operatorID int64, input string) (applicant.Applicant, error) {
	telegramID, err := c.pending.Get(ctx, operatorID)
	if err != nil {
		return applicant.Applicant{}, err
	}

	city, date, err := ParseAcceptanceInput(input)
	if err != nil {
		return applicant.Applicant{}, err
	}

	if err := c.pending.Delete(ctx, operatorID); err != nil {
		return applicant.Applicant{}, err
	}
	if err := c.applicants.Accept(ctx, telegramID, city, date); err != nil {
		return applicant.Applicant{}, err
	}
	if err := c.directory.Close(ctx, telegramID); err != nil {
		return applicant.Applicant{}, err
	}

	c.logger.Info("applicant accepted",
		slog.Int64("applicant_id", telegramID),
		slog.Int64("operator_id", operatorID),
		slog.String("city", city))
	return c.applicants.Get(ctx, telegramID)
}

// Accept применяет принятие с метаданными напрямую (админ-панель).
func (c *StatusCoordinator) Accept(ctx context.Context, telegramID int64, city string, date time.Time) error {
	if err := c.applicants.Accept(ctx, telegramID, city, date); err != nil {
		return err
	}
	return c.directory.Close(ctx, telegramID)
}

// DeleteApplicant удаляет заявку каскадно вместе с темой.
func (c *StatusCoordinator) DeleteApplicant(ctx context.Context, telegramID int64) error {
	if err := c.directory.Close(ctx, telegramID); err != nil {
		return err
	}
	return c.applicants.Delete(ctx, telegramID)
}

// ParseAcceptanceInput разбирает ответ вида "Львів:2025-09-01".
func ParseAcceptanceInput(input string) (string, time.Time, error) {
	city, rawDate, ok := strings.Cut(strings.TrimSpace(input), ":")
	if !ok {
		return "", time.Time{}, ErrBadAcceptanceInput
	}
	city = strings.TrimSpace(city)
	rawDate = strings.TrimSpace(rawDate)
	if city == "" || rawDate == "" {
		return "", time.Time{}, ErrBadAcceptanceInput
	}
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return "", time.Time{}, ErrBadAcceptanceInput
	}
	return city, date, nil
}
