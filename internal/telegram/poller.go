package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poller доставляет обновления длинным опросом. Каждое обновление
// обрабатывается в собственной горутине: платформа не гарантирует
// порядок событий, и обработчики на него не полагаются.
type Poller struct {
	client      *Client
	handler     UpdateHandler
	logger      *slog.Logger
	timeout     time.Duration
	interval    time.Duration
	limit       int
	dropPending bool
}

// NewPoller создает опрашиватель getUpdates.
func NewPoller(client *Client, handler UpdateHandler, logger *slog.Logger, timeout, interval time.Duration, limit int, dropPending bool) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:      client,
		handler:     handler,
		logger:      logger,
		timeout:     timeout,
		interval:    interval,
		limit:       limit,
		dropPending: dropPending,
	}
}

// Run блокирует выполнение до отмены контекста.
func (p *Poller) Run(ctx context.Context) {
	if err := p.client.DeleteWebhook(ctx, p.dropPending); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("delete webhook before polling failed", slog.String("error", err.Error()))
	}

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout, p.limit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logger.Error("get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			go p.dispatch(ctx, update)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, update Update) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("update handler panicked", slog.Int64("update_id", update.UpdateID), slog.Any("panic", r))
		}
	}()
	if err := p.handler.HandleUpdate(ctx, update); err != nil {
		p.logger.Error("failed to handle telegram update", slog.Int64("update_id", update.UpdateID), slog.String("error", err.Error()))
	}
}
