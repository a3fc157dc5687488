// Package relay связывает личный чат заявителя с темой форума в группе
// модераторов: держит справочник тем, зеркалирует сообщения в обе стороны
// и переносит правки и реакции между парными сообщениями.
package relay

import (
	"context"
	"errors"
	"time"
)

// ThreadMapping связывает заявителя с темой форума. Активная связь
// у заявителя не более одной.
type ThreadMapping struct {
	TelegramID int64
	ThreadID   int64
	CreatedAt  time.Time
}

var (
	ErrMappingNotFound = errors.New("thread mapping not found")
	ErrMappingExists   = errors.New("thread mapping already exists")
)

// MappingStore хранит связи заявитель-тема с поиском в обе стороны.
type MappingStore interface {
	GetByApplicant(ctx context.Context, telegramID int64) (ThreadMapping, error)
	GetByThread(ctx context.Context, threadID int64) (ThreadMapping, error)
	Insert(ctx context.Context, m ThreadMapping) error
	Delete(ctx context.Context, telegramID int64) error
}

// MessageKind — форма содержимого зеркалированного сообщения.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
	KindOther MessageKind = "other"
)

// MessageLogEntry — пара идентификаторов одного зеркалированного
// сообщения: оригинал и копия, по одному на каждую сторону.
type MessageLogEntry struct {
	StaffMessageID     int64
	ApplicantMessageID int64
	TelegramID         int64
	ThreadID           int64
	Kind               MessageKind
	CreatedAt          time.Time
}

// Side указывает, какой стороне пары принадлежит найденный идентификатор.
type Side int

const (
	SideStaff Side = iota + 1
	SideApplicant
)

func (s Side) String() string {
	switch s {
	case SideStaff:
		return "staff"
	case SideApplicant:
		return "applicant"
	}
	return "unknown"
}

var (
	ErrLogEntryNotFound = errors.New("message log entry not found")
	ErrLogEntryExists   = errors.New("message log entry already exists")
)

// LogStore хранит журнал зеркалированных сообщений. Каждый
// идентификатор состоит не более чем в одной паре; повторная вставка
// возвращает ErrLogEntryExists.
type LogStore interface {
	Insert(ctx context.Context, e MessageLogEntry) error
	// Lookup находит пару по идентификатору любой из сторон и сообщает,
	// какая сторона совпала.
	Lookup(ctx context.Context, messageID int64) (MessageLogEntry, Side, error)
	Delete(ctx context.Context, e MessageLogEntry) error
}

// ReactionRecord — текущая реакция пользователя на зеркалированное
// сообщение. Служит только для отражения реакций, ни на что больше
// не влияет.
type ReactionRecord struct {
	MessageID int64
	ReactorID int64
	Emoji     string
	Side      Side
}

// ReactionStore сохраняет состояние реакций.
type ReactionStore interface {
	Upsert(ctx context.Context, r ReactionRecord) error
}

// Gateway — операции платформы, нужные релею. Все вызовы удаленные
// и могут отказать.
type Gateway interface {
	CopyMessage(ctx context.Context, toChatID, threadID, fromChatID, messageID int64) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SetMessageReaction(ctx context.Context, chatID, messageID int64, emoji string) error
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	DeleteForumTopic(ctx context.Context, chatID, threadID int64) error
}
