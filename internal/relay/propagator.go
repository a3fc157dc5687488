package relay

import (
	"context"
	"errors"
	"log/slog"

	"intake_bot/internal/metrics"
	"intake_bot/internal/telegram"
)

// applicantVoicePrefix отличает голос заявителя от голоса модераторов
// в общей теме.
const applicantVoicePrefix = "👤 "

// Propagator переносит правки, реакции и удаления на парное сообщение
// противоположной стороны.
type Propagator struct {
	log       LogStore
	reactions ReactionStore
	gateway   Gateway
	groupID   int64
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewPropagator создает пропагатор правок и реакций.
func NewPropagator(log LogStore, reactions ReactionStore, gateway Gateway, groupID int64, logger *slog.Logger, collector *metrics.Collector) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{
		log:       log,
		reactions: reactions,
		gateway:   gateway,
		groupID:   groupID,
		logger:    logger,
		metrics:   collector,
	}
}

// counterpart возвращает чат и идентификатор парного сообщения для
// совпавшей стороны.
func (p *Propagator) counterpart(entry MessageLogEntry, side Side) (chatID, messageID int64) {
	if side == SideStaff {
		return entry.TelegramID, entry.ApplicantMessageID
	}
	return p.groupID, entry.StaffMessageID
}

// PropagateEdit применяет правку к парному сообщению. Незнакомые
// идентификаторы и неподдерживаемые формы содержимого игнорируются.
func (p *Propagator) PropagateEdit(ctx context.Context, msg *telegram.Message) error {
	entry, side, err := p.log.Lookup(ctx, msg.MessageID)
	if err != nil {
		if errors.Is(err, ErrLogEntryNotFound) {
			return nil
		}
		return err
	}

	var content string
	caption := false
	switch {
	case msg.Text != "":
		content = msg.Text
	case msg.HasMedia():
		content = msg.Caption
		caption = true
	default:
		return nil
	}
	if side == SideApplicant {
		content = applicantVoicePrefix + content
	}

	chatID, messageID := p.counterpart(entry, side)
	if caption {
		err = p.gateway.EditMessageCaption(ctx, chatID, messageID, content)
	} else {
		err = p.gateway.EditMessageText(ctx, chatID, messageID, content)
	}
	if err != nil {
		p.logger.Warn("edit propagation failed",
			slog.String("side", side.String()),
			slog.Int64("message_id", msg.MessageID),
			slog.String("error", err.Error()))
		return nil
	}

	if p.metrics != nil {
		p.metrics.PropagatedEdits.Inc()
	}
	return nil
}

// PropagateReaction отражает реакцию на парном сообщении и сохраняет
// ее состояние. Чисто косметическая операция: отказы не влияют на
// состояние заявки или темы.
func (p *Propagator) PropagateReaction(ctx context.Context, upd *telegram.MessageReactionUpdated) error {
	entry, side, err := p.log.Lookup(ctx, upd.MessageID)
	if err != nil {
		if errors.Is(err, ErrLogEntryNotFound) {
			return nil
		}
		return err
	}

	emoji := ""
	for _, r := range upd.NewReaction {
		if r.Type == "emoji" && r.Emoji != "" {
			emoji = r.Emoji
			break
		}
	}

	chatID, messageID := p.counterpart(entry, side)
	if err := p.gateway.SetMessageReaction(ctx, chatID, messageID, emoji); err != nil {
		p.logger.Warn("reaction propagation failed",
			slog.String("side", side.String()),
			slog.Int64("message_id", upd.MessageID),
			slog.String("error", err.Error()))
	} else if p.metrics != nil {
		p.metrics.PropagatedReactions.Inc()
	}

	if upd.User != nil {
		record := ReactionRecord{
			MessageID: upd.MessageID,
			ReactorID: upd.User.ID,
			Emoji:     emoji,
			Side:      side,
		}
		if err := p.reactions.Upsert(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// PropagateDelete удаляет обе стороны пары на платформе и убирает
// запись из журнала. Удаленные отказы не мешают чистке журнала.
func (p *Propagator) PropagateDelete(ctx context.Context, messageID int64) error {
	entry, _, err := p.log.Lookup(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrLogEntryNotFound) {
			return nil
		}
		return err
	}

	if err := p.gateway.DeleteMessage(ctx, p.groupID, entry.StaffMessageID); err != nil {
		p.logger.Warn("staff-side delete failed",
			slog.Int64("message_id", entry.StaffMessageID),
			slog.String("error", err.Error()))
	}
	if err := p.gateway.DeleteMessage(ctx, entry.TelegramID, entry.ApplicantMessageID); err != nil {
		p.logger.Warn("applicant-side delete failed",
			slog.Int64("message_id", entry.ApplicantMessageID),
			slog.String("error", err.Error()))
	}

	return p.log.Delete(ctx, entry)
}
