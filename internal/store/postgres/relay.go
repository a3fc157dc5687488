package postgres

import (
	"context"
	"database/sql"
	"errors"

	"intake_bot/internal/relay"
)

// MappingStore хранит связи заявитель-тема в Postgres.
type MappingStore struct {
	db *sql.DB
}

// NewMappingStore создает новый MappingStore.
func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

func (s *MappingStore) GetByApplicant(ctx context.Context, telegramID int64) (relay.ThreadMapping, error) {
	const query = `
		SELECT telegram_id, thread_id, created_at
		FROM topic_mappings
		WHERE telegram_id = $1
	`
	return s.scanMapping(s.db.QueryRowContext(ctx, query, telegramID))
}

func (s *MappingStore) GetByThread(ctx context.Context, threadID int64) (relay.ThreadMapping, error) {
	const query = `
		SELECT telegram_id, thread_id, created_at
		FROM topic_mappings
		WHERE thread_id = $1
	`
	return s.scanMapping(s.db.QueryRowContext(ctx, query, threadID))
}

func (s *MappingStore) Insert(ctx context.Context, m relay.ThreadMapping) error {
	const query = `
		INSERT INTO topic_mappings (telegram_id, thread_id, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := s.db.ExecContext(ctx, query, m.TelegramID, m.ThreadID); err != nil {
		if isUniqueViolation(err) {
			return relay.ErrMappingExists
		}
		return err
	}
	return nil
}

func (s *MappingStore) Delete(ctx context.Context, telegramID int64) error {
	const query = `DELETE FROM topic_mappings WHERE telegram_id = $1`
	_, err := s.db.ExecContext(ctx, query, telegramID)
	return err
}

func (s *MappingStore) scanMapping(row rowScanner) (relay.ThreadMapping, error) {
	var m relay.ThreadMapping
	if err := row.Scan(&m.TelegramID, &m.ThreadID, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return relay.ThreadMapping{}, relay.ErrMappingNotFound
		}
		return relay.ThreadMapping{}, err
	}
	return m, nil
}

// LogStore хранит журнал зеркалированных сообщений в Postgres.
type LogStore struct {
	db *sql.DB
}

// NewLogStore создает новый LogStore.
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Insert(ctx context.Context, e relay.MessageLogEntry) error {
	const query = `
		INSERT INTO message_log (staff_message_id, applicant_message_id, telegram_id, thread_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := s.db.ExecContext(ctx, query, e.StaffMessageID, e.ApplicantMessageID, e.TelegramID, e.ThreadID, string(e.Kind)); err != nil {
		if isUniqueViolation(err) {
			return relay.ErrLogEntryExists
		}
		return err
	}
	return nil
}

// Lookup ищет пару сперва по идентификатору со стороны группы, затем со
// стороны заявителя.
func (s *LogStore) Lookup(ctx context.Context, messageID int64) (relay.MessageLogEntry, relay.Side, error) {
	const byStaff = `
		SELECT staff_message_id, applicant_message_id, telegram_id, thread_id, kind, created_at
		FROM message_log
		WHERE staff_message_id = $1
	`
	entry, err := s.scanEntry(s.db.QueryRowContext(ctx, byStaff, messageID))
	if err == nil {
		return entry, relay.SideStaff, nil
	}
	if !errors.Is(err, relay.ErrLogEntryNotFound) {
		return relay.MessageLogEntry{}, 0, err
	}

	const byApplicant = `
		SELECT staff_message_id, applicant_message_id, telegram_id, thread_id, kind, created_at
		FROM message_log
		WHERE applicant_message_id = $1
	`
	entry, err = s.scanEntry(s.db.QueryRowContext(ctx, byApplicant, messageID))
	if err != nil {
		return relay.MessageLogEntry{}, 0, err
	}
	return entry, relay.SideApplicant, nil
}

func (s *LogStore) Delete(ctx context.Context, e relay.MessageLogEntry) error {
	const query = `
		DELETE FROM message_log
		WHERE staff_message_id = $1 AND applicant_message_id = $2
	`
	_, err := s.db.ExecContext(ctx, query, e.StaffMessageID, e.ApplicantMessageID)
	return err
}

func (s *LogStore) scanEntry(row rowScanner) (relay.MessageLogEntry, error) {
	var e relay.MessageLogEntry
	var kind string
	if err := row.Scan(&e.StaffMessageID, &e.ApplicantMessageID, &e.TelegramID, &e.ThreadID, &kind, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return relay.MessageLogEntry{}, relay.ErrLogEntryNotFound
		}
		return relay.MessageLogEntry{}, err
	}
	e.Kind = relay.MessageKind(kind)
	return e, nil
}

// ReactionStore хранит состояние реакций в Postgres.
type ReactionStore struct {
	db *sql.DB
}

// NewReactionStore создает новый ReactionStore.
func NewReactionStore(db *sql.DB) *ReactionStore {
	return &ReactionStore{db: db}
}

func (s *ReactionStore) Upsert(ctx context.Context, r relay.ReactionRecord) error {
	const query = `
		INSERT INTO message_reactions (message_id, reactor_id, emoji, side, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (message_id, reactor_id)
		DO UPDATE SET emoji = EXCLUDED.emoji,
			side = EXCLUDED.side,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, r.MessageID, r.ReactorID, r.Emoji, int(r.Side))
	return err
}
