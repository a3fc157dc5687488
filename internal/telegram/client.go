package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.telegram.org"

var allowedUpdates = []string{"message", "edited_message", "callback_query", "message_reaction"}

// APIError описывает не-2xx ответ Telegram Bot API.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram api error %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram api error %d", e.StatusCode)
}

// Client вызывает методы Telegram Bot API с общим лимитом исходящих запросов.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient создает клиент Bot API. sendRate ограничивает исходящие
// вызовы в секунду; ноль отключает лимит.
func NewClient(botToken string, httpClient *http.Client, sendRate float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	var limiter *rate.Limiter
	if sendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(sendRate), int(sendRate)+1)
	}
	return &Client{
		baseURL:    defaultBaseURL,
		botToken:   botToken,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// SetBaseURL переопределяет адрес Bot API (для тестов).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (c *Client) invoke(ctx context.Context, method string, payload map[string]any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram %s rate wait: %w", method, err)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s encode: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s read: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Description: string(raw)}
		}
		return fmt.Errorf("telegram %s decode: %w", method, err)
	}
	if !parsed.OK {
		return &APIError{StatusCode: resp.StatusCode, Description: parsed.Description}
	}
	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram %s result decode: %w", method, err)
		}
	}
	return nil
}

// SendMessage отправляет текстовое сообщение в чат.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.invoke(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

// SendMessageWithMarkup отправляет текст с клавиатурой.
func (c *Client) SendMessageWithMarkup(ctx context.Context, chatID int64, text string, replyMarkup any) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	return c.invoke(ctx, "sendMessage", payload, nil)
}

// SendThreadMessage отправляет текст в тему форума группы.
func (c *Client) SendThreadMessage(ctx context.Context, chatID, threadID int64, text string, replyMarkup any) error {
	payload := map[string]any{
		"chat_id":           chatID,
		"message_thread_id": threadID,
		"text":              text,
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	return c.invoke(ctx, "sendMessage", payload, nil)
}

type messageIDResult struct {
	MessageID int64 `json:"message_id"`
}

// CopyMessage копирует сообщение без ссылки на оригинал и возвращает
// идентификатор копии. threadID равный нулю означает общий чат.
func (c *Client) CopyMessage(ctx context.Context, toChatID, threadID, fromChatID, messageID int64) (int64, error) {
	payload := map[string]any{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	var result messageIDResult
	if err := c.invoke(ctx, "copyMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// EditMessageText заменяет текст ранее отправленного сообщения.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.invoke(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// EditMessageCaption заменяет подпись медиа-сообщения.
func (c *Client) EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string) error {
	return c.invoke(ctx, "editMessageCaption", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"caption":    caption,
	}, nil)
}

// EditMessageReplyMarkup заменяет клавиатуру сообщения; nil убирает ее.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, replyMarkup any) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	return c.invoke(ctx, "editMessageReplyMarkup", payload, nil)
}

// DeleteMessage удаляет сообщение.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.invoke(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SetMessageReaction выставляет реакцию на сообщение; пустая строка
// снимает реакцию.
func (c *Client) SetMessageReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	reactions := []ReactionType{}
	if emoji != "" {
		reactions = append(reactions, ReactionType{Type: "emoji", Emoji: emoji})
	}
	return c.invoke(ctx, "setMessageReaction", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   reactions,
	}, nil)
}

type forumTopicResult struct {
	MessageThreadID int64 `json:"message_thread_id"`
}

// CreateForumTopic создает тему форума и возвращает ее идентификатор.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	var result forumTopicResult
	if err := c.invoke(ctx, "createForumTopic", map[string]any{
		"chat_id": chatID,
		"name":    name,
	}, &result); err != nil {
		return 0, err
	}
	return result.MessageThreadID, nil
}

// DeleteForumTopic удаляет тему форума вместе с сообщениями.
func (c *Client) DeleteForumTopic(ctx context.Context, chatID, threadID int64) error {
	return c.invoke(ctx, "deleteForumTopic", map[string]any{
		"chat_id":           chatID,
		"message_thread_id": threadID,
	}, nil)
}

type chatMemberResult struct {
	Status string `json:"status"`
}

// GetChatMember возвращает статус участника группы.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (string, error) {
	var result chatMemberResult
	if err := c.invoke(ctx, "getChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// AnswerCallbackQuery подтверждает нажатие inline-кнопки.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.invoke(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	}, nil)
}

// GetUpdates запрашивает обновления длинным опросом.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, limit int) ([]Update, error) {
	payload := map[string]any{
		"allowed_updates": allowedUpdates,
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	if timeout > 0 {
		seconds := int(timeout.Round(time.Second).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		if seconds > 50 {
			seconds = 50
		}
		payload["timeout"] = seconds
	}
	if limit > 0 {
		if limit > 100 {
			limit = 100
		}
		payload["limit"] = limit
	}
	var updates []Update
	if err := c.invoke(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetWebhook регистрирует адрес webhook.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string, dropPending bool) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("telegram set webhook: url is required")
	}
	payload := map[string]any{
		"url":             url,
		"allowed_updates": allowedUpdates,
	}
	if secretToken != "" {
		payload["secret_token"] = secretToken
	}
	if dropPending {
		payload["drop_pending_updates"] = true
	}
	return c.invoke(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook отключает webhook перед длинным опросом.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	payload := map[string]any{}
	if dropPending {
		payload["drop_pending_updates"] = true
	}
	return c.invoke(ctx, "deleteWebhook", payload, nil)
}
