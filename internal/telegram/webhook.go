package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"intake_bot/internal/observability"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler обрабатывает одно обновление Telegram.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// WebhookHandler проверяет запросы Telegram webhook и передает обновления.
type WebhookHandler struct {
	handler      UpdateHandler
	secretToken  string
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewWebhookHandler создает обработчик webhook с проверкой секретного токена.
func NewWebhookHandler(handler UpdateHandler, secretToken string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		handler:      handler,
		secretToken:  secretToken,
		maxBodyBytes: 1 << 20,
		logger:       logger,
	}
}

// ServeHTTP реализует http.Handler для коллбэков Telegram webhook.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.secretToken != "" && r.Header.Get(telegramSecretHeader) != h.secretToken {
		h.logger.Warn("unauthorized webhook request", slog.String("request_id", observability.RequestIDFromContext(r.Context())))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	payload, err := io.ReadAll(body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", slog.String("request_id", observability.RequestIDFromContext(r.Context())))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var update Update
	if err := json.Unmarshal(payload, &update); err != nil {
		h.logger.Warn("invalid webhook payload", slog.String("request_id", observability.RequestIDFromContext(r.Context())))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.handler.HandleUpdate(r.Context(), update); err != nil {
		h.logger.Error("failed to handle telegram update", slog.String("request_id", observability.RequestIDFromContext(r.Context())), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
