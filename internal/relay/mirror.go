package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"intake_bot/internal/applicant"
	"intake_bot/internal/metrics"
	"intake_bot/internal/telegram"
)

// Mirror копирует входящие сообщения на противоположную сторону и
// записывает пару идентификаторов в журнал.
type Mirror struct {
	mappings   MappingStore
	log        LogStore
	applicants applicant.Store
	gateway    Gateway
	groupID    int64
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewMirror создает зеркало сообщений.
func NewMirror(mappings MappingStore, log LogStore, applicants applicant.Store, gateway Gateway, groupID int64, logger *slog.Logger, collector *metrics.Collector) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		mappings:   mappings,
		log:        log,
		applicants: applicants,
		gateway:    gateway,
		groupID:    groupID,
		logger:     logger,
		metrics:    collector,
	}
}

// Classify определяет форму содержимого сообщения.
func Classify(msg *telegram.Message) MessageKind {
	switch {
	case msg.Text != "":
		return KindText
	case msg.HasMedia():
		return KindMedia
	default:
		return KindOther
	}
}

// FromApplicant зеркалирует сообщение заявителя в его тему. Без
// открытой темы сообщение молча отбрасывается: назначения еще нет,
// чат начинает модератор.
func (m *Mirror) FromApplicant(ctx context.Context, msg *telegram.Message) error {
	mapping, err := m.mappings.GetByApplicant(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			m.drop("applicant", msg)
			return nil
		}
		return err
	}

	copied, err := m.gateway.CopyMessage(ctx, m.groupID, mapping.ThreadID, msg.Chat.ID, msg.MessageID)
	if err != nil {
		m.fail("applicant", msg, err)
		return nil
	}

	entry := MessageLogEntry{
		StaffMessageID:     copied,
		ApplicantMessageID: msg.MessageID,
		TelegramID:         msg.From.ID,
		ThreadID:           mapping.ThreadID,
		Kind:               Classify(msg),
	}
	if err := m.log.Insert(ctx, entry); err != nil {
		return fmt.Errorf("log mirrored applicant message: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RelayedMessages.WithLabelValues("applicant").Inc()
	}
	return nil
}

// FromStaff зеркалирует сообщение из темы форума заявителю. Первое
// сообщение модератора переводит статус New в In Progress.
func (m *Mirror) FromStaff(ctx context.Context, msg *telegram.Message) error {
	if msg.MessageThreadID == 0 {
		return nil
	}
	mapping, err := m.mappings.GetByThread(ctx, msg.MessageThreadID)
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			m.drop("staff", msg)
			return nil
		}
		return err
	}

	copied, err := m.gateway.CopyMessage(ctx, mapping.TelegramID, 0, msg.Chat.ID, msg.MessageID)
	if err != nil {
		m.fail("staff", msg, err)
		return nil
	}

	entry := MessageLogEntry{
		StaffMessageID:     msg.MessageID,
		ApplicantMessageID: copied,
		TelegramID:         mapping.TelegramID,
		ThreadID:           mapping.ThreadID,
		Kind:               Classify(msg),
	}
	if err := m.log.Insert(ctx, entry); err != nil {
		return fmt.Errorf("log mirrored staff message: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RelayedMessages.WithLabelValues("staff").Inc()
	}

	if err := m.applicants.MarkInProgressIfNew(ctx, mapping.TelegramID); err != nil && !errors.Is(err, applicant.ErrApplicantNotFound) {
		return fmt.Errorf("mark applicant in progress: %w", err)
	}
	return nil
}

func (m *Mirror) drop(direction string, msg *telegram.Message) {
	m.logger.Debug("message dropped, no thread mapping",
		slog.String("direction", direction),
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int64("message_id", msg.MessageID))
	if m.metrics != nil {
		m.metrics.DroppedMessages.WithLabelValues(direction).Inc()
	}
}

func (m *Mirror) fail(direction string, msg *telegram.Message, err error) {
	m.logger.Error("mirror failed",
		slog.String("direction", direction),
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int64("message_id", msg.MessageID),
		slog.String("error", err.Error()))
	if m.metrics != nil {
		m.metrics.RelayFailures.WithLabelValues(direction).Inc()
	}
}
