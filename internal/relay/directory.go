package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"intake_bot/internal/applicant"
	"intake_bot/internal/metrics"
)

// Directory — справочник тем форума: единственный авторитет в вопросе
// "есть ли у заявителя открытая тема".
type Directory struct {
	mappings   MappingStore
	applicants applicant.Store
	gateway    Gateway
	groupID    int64
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewDirectory создает справочник тем.
func NewDirectory(mappings MappingStore, applicants applicant.Store, gateway Gateway, groupID int64, logger *slog.Logger, collector *metrics.Collector) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		mappings:   mappings,
		applicants: applicants,
		gateway:    gateway,
		groupID:    groupID,
		logger:     logger,
		metrics:    collector,
	}
}

// Resolve возвращает тему заявителя или ErrMappingNotFound.
func (d *Directory) Resolve(ctx context.Context, telegramID int64) (int64, error) {
	m, err := d.mappings.GetByApplicant(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	return m.ThreadID, nil
}

// ResolveApplicant возвращает заявителя по теме или ErrMappingNotFound.
func (d *Directory) ResolveApplicant(ctx context.Context, threadID int64) (int64, error) {
	m, err := d.mappings.GetByThread(ctx, threadID)
	if err != nil {
		return 0, err
	}
	return m.TelegramID, nil
}

// Open возвращает тему заявителя, создавая ее при необходимости.
// Повторный вызов идемпотентен: существующая связь возвращается без
// изменений. Проигранную гонку вставки разрешает повторное чтение.
func (d *Directory) Open(ctx context.Context, telegramID int64) (int64, error) {
	if m, err := d.mappings.GetByApplicant(ctx, telegramID); err == nil {
		return m.ThreadID, nil
	} else if !errors.Is(err, ErrMappingNotFound) {
		return 0, err
	}

	a, err := d.applicants.Get(ctx, telegramID)
	if err != nil {
		return 0, err
	}

	threadID, err := d.gateway.CreateForumTopic(ctx, d.groupID, "Чат: "+a.DisplayName())
	if err != nil {
		// Отказ платформы не обязательно значит, что темы нет:
		// конкурентный Open мог уже создать ее. Перечитываем связь
		// и сдаемся только если ее действительно не появилось.
		if m, readErr := d.mappings.GetByApplicant(ctx, telegramID); readErr == nil {
			return m.ThreadID, nil
		}
		return 0, fmt.Errorf("create forum topic: %w", err)
	}

	err = d.mappings.Insert(ctx, ThreadMapping{TelegramID: telegramID, ThreadID: threadID})
	if err != nil {
		if errors.Is(err, ErrMappingExists) {
			// Конкурентный Open успел раньше: нашу тему убираем,
			// связь перечитываем.
			if cleanupErr := d.gateway.DeleteForumTopic(ctx, d.groupID, threadID); cleanupErr != nil {
				d.logger.Warn("orphan topic cleanup failed",
					slog.Int64("thread_id", threadID),
					slog.String("error", cleanupErr.Error()))
			}
			m, readErr := d.mappings.GetByApplicant(ctx, telegramID)
			if readErr != nil {
				return 0, readErr
			}
			return m.ThreadID, nil
		}
		return 0, err
	}

	if d.metrics != nil {
		d.metrics.TopicsOpened.Inc()
	}
	d.logger.Info("topic opened", slog.Int64("applicant_id", telegramID), slog.Int64("thread_id", threadID))
	return threadID, nil
}

// Close удаляет тему заявителя. Удаленная сторона чистится первой и
// только по возможности; локальная связь удаляется всегда, иначе
// устаревшая запись уводила бы будущие сообщения в мертвую тему.
func (d *Directory) Close(ctx context.Context, telegramID int64) error {
	m, err := d.mappings.GetByApplicant(ctx, telegramID)
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			return nil
		}
		return err
	}

	if err := d.gateway.DeleteForumTopic(ctx, d.groupID, m.ThreadID); err != nil {
		d.logger.Warn("remote topic delete failed",
			slog.Int64("applicant_id", telegramID),
			slog.Int64("thread_id", m.ThreadID),
			slog.String("error", err.Error()))
	}

	if err := d.mappings.Delete(ctx, telegramID); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.TopicsClosed.Inc()
	}
	d.logger.Info("topic closed", slog.Int64("applicant_id", telegramID), slog.Int64("thread_id", m.ThreadID))
	return nil
}
