// Package bot маршрутизирует обновления Telegram: анкета в личных
// чатах, кнопки модераторов, релей сообщений между заявителем и темой
// форума.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"intake_bot/internal/adminpanel"
	"intake_bot/internal/applicant"
	"intake_bot/internal/intake"
	"intake_bot/internal/ratelimit"
	"intake_bot/internal/relay"
	"intake_bot/internal/settings"
	"intake_bot/internal/telegram"
)

// Sender — операции отправки, нужные маршрутизатору.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageWithMarkup(ctx context.Context, chatID int64, text string, replyMarkup any) error
	SendThreadMessage(ctx context.Context, chatID, threadID int64, text string, replyMarkup any) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, replyMarkup any) error
}

// Bot обрабатывает входящие обновления Telegram.
type Bot struct {
	sender      Sender
	form        *intake.Form
	applicants  applicant.Store
	directory   *relay.Directory
	mirror      *relay.Mirror
	propagator  *relay.Propagator
	coordinator *relay.StatusCoordinator
	tokens      *adminpanel.Issuer
	settings    settings.Store
	limiter     ratelimit.Limiter
	groupID     int64
	adminID     int64
	adminURL    string
	logger      *slog.Logger
}

// Deps — зависимости маршрутизатора.
type Deps struct {
	Sender      Sender
	Form        *intake.Form
	Applicants  applicant.Store
	Directory   *relay.Directory
	Mirror      *relay.Mirror
	Propagator  *relay.Propagator
	Coordinator *relay.StatusCoordinator
	Tokens      *adminpanel.Issuer
	Settings    settings.Store
	Limiter     ratelimit.Limiter
	GroupID     int64
	AdminID     int64
	AdminURL    string
	Logger      *slog.Logger
}

// New создает маршрутизатор обновлений.
func New(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:      deps.Sender,
		form:        deps.Form,
		applicants:  deps.Applicants,
		directory:   deps.Directory,
		mirror:      deps.Mirror,
		propagator:  deps.Propagator,
		coordinator: deps.Coordinator,
		tokens:      deps.Tokens,
		settings:    deps.Settings,
		limiter:     deps.Limiter,
		groupID:     deps.GroupID,
		adminID:     deps.AdminID,
		adminURL:    deps.AdminURL,
		logger:      logger,
	}
}

// HandleUpdate маршрутизирует одно обновление. Ошибки одного события
// не задевают остальные: вызывающая сторона их только логирует.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) error {
	switch {
	case update.MessageReaction != nil:
		return b.propagator.PropagateReaction(ctx, update.MessageReaction)
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.EditedMessage != nil:
		return b.propagator.PropagateEdit(ctx, update.EditedMessage)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From.ID == 0 {
		return nil
	}
	if b.limiter != nil && !b.limiter.Allow(strconv.FormatInt(msg.From.ID, 10)) {
		b.logger.Debug("inbound message rate limited", slog.Int64("user_id", msg.From.ID))
		return nil
	}

	command, _ := parseCommand(msg.Text)
	if command == "/setgroup" && (msg.Chat.Type == "group" || msg.Chat.Type == "supergroup") {
		return b.handleSetGroup(ctx, msg)
	}

	if msg.Chat.ID == b.groupID {
		return b.handleGroupMessage(ctx, msg)
	}
	if msg.Chat.Type == "private" {
		return b.handlePrivateMessage(ctx, msg)
	}
	return nil
}

func (b *Bot) handleSetGroup(ctx context.Context, msg *telegram.Message) error {
	if msg.From.ID != b.adminID {
		return nil
	}
	if err := b.settings.Set(ctx, settings.KeyStaffGroupID, strconv.FormatInt(msg.Chat.ID, 10)); err != nil {
		return fmt.Errorf("save staff group id: %w", err)
	}
	return b.sender.SendMessage(ctx, msg.Chat.ID, "✅ Групу збережено. Зміни набудуть чинності після перезапуску.")
}

func (b *Bot) handleGroupMessage(ctx context.Context, msg *telegram.Message) error {
	command, _ := parseCommand(msg.Text)
	if command == "/delete" && msg.ReplyToMessage != nil {
		return b.propagator.PropagateDelete(ctx, msg.ReplyToMessage.MessageID)
	}

	// Ответ с метаданными принятия приходит в общий чат группы, вне
	// тем, в ответ на подсказку после кнопки "Прийняти".
	if msg.MessageThreadID == 0 && msg.Text != "" && !strings.HasPrefix(msg.Text, "/") {
		handled, err := b.tryCompleteAcceptance(ctx, msg)
		if handled || err != nil {
			return err
		}
		return nil
	}

	if msg.MessageThreadID != 0 {
		if strings.HasPrefix(msg.Text, "/") {
			return nil
		}
		return b.mirror.FromStaff(ctx, msg)
	}
	return nil
}

func (b *Bot) tryCompleteAcceptance(ctx context.Context, msg *telegram.Message) (bool, error) {
	accepted, err := b.coordinator.CompleteAcceptance(ctx, msg.From.ID, msg.Text)
	switch {
	case err == nil:
		text := fmt.Sprintf("✅ Заявку прийнято: %s, %s, %s.",
			accepted.Name, accepted.AcceptedCity, accepted.AcceptedDate.Format("2006-01-02"))
		return true, b.sender.SendMessage(ctx, msg.Chat.ID, text)
	case errors.Is(err, relay.ErrNoPendingAcceptance):
		return false, nil
	case errors.Is(err, relay.ErrBadAcceptanceInput):
		return true, b.sender.SendMessage(ctx, msg.Chat.ID,
			"❌ Не вдалося розібрати відповідь. Надішли місто та дату у форматі Місто:РРРР-ММ-ДД, наприклад Львів:2025-09-01.")
	default:
		return true, err
	}
}

func (b *Bot) handlePrivateMessage(ctx context.Context, msg *telegram.Message) error {
	command, _ := parseCommand(msg.Text)
	switch command {
	case "/start":
		return b.handleStart(ctx, msg)
	case "/cancel":
		b.form.Cancel(msg.From.ID)
		return b.sender.SendMessage(ctx, msg.Chat.ID, "🚫 Розмову скасовано.")
	case "/admin":
		return b.handleAdminCommand(ctx, msg)
	}

	if b.form.Active(msg.From.ID) {
		return b.advanceForm(ctx, msg)
	}
	return b.mirror.FromApplicant(ctx, msg)
}

func (b *Bot) handleStart(ctx context.Context, msg *telegram.Message) error {
	exists, err := b.applicants.Exists(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if exists {
		return b.sender.SendMessage(ctx, msg.Chat.ID, "⚠️ Ви вже подали заявку. Очікуйте на відповідь від адміністратора.")
	}
	return b.sender.SendMessage(ctx, msg.Chat.ID, b.form.Begin(msg.From.ID))
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *telegram.Message) error {
	if msg.From.ID != b.adminID || b.tokens == nil || b.adminURL == "" {
		return nil
	}
	token, err := b.tokens.Issue(ctx, msg.From.ID)
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}
	link := fmt.Sprintf("%s/?token=%s", b.adminURL, token.Token)
	text := fmt.Sprintf("🔑 Посилання на адмін-панель (діє до %s):\n%s",
		token.ExpiresAt.Format("15:04"), link)
	return b.sender.SendMessage(ctx, msg.Chat.ID, text)
}

func (b *Bot) advanceForm(ctx context.Context, msg *telegram.Message) error {
	result, ok := b.form.Advance(msg)
	if !ok {
		return b.mirror.FromApplicant(ctx, msg)
	}

	if !result.Done {
		if result.ReplyMarkup != nil {
			return b.sender.SendMessageWithMarkup(ctx, msg.Chat.ID, result.Reply, result.ReplyMarkup)
		}
		return b.sender.SendMessage(ctx, msg.Chat.ID, result.Reply)
	}
	if result.Refused {
		return b.sender.SendMessage(ctx, msg.Chat.ID, result.Reply)
	}

	if err := b.applicants.Create(ctx, result.Applicant); err != nil {
		if errors.Is(err, applicant.ErrApplicantExists) {
			return b.sender.SendMessage(ctx, msg.Chat.ID, "⚠️ Ви вже подали заявку.")
		}
		b.logger.Error("create applicant failed", slog.Int64("user_id", msg.From.ID), slog.String("error", err.Error()))
		return b.sender.SendMessage(ctx, msg.Chat.ID, "❌ Сталася помилка при збереженні даних.")
	}

	if err := b.sender.SendMessageWithMarkup(ctx, b.groupID, summaryCard(result.Applicant), summaryKeyboard(result.Applicant.TelegramID)); err != nil {
		b.logger.Error("send summary card failed", slog.Int64("user_id", msg.From.ID), slog.String("error", err.Error()))
	}
	return b.sender.SendMessage(ctx, msg.Chat.ID, "📨 Твоя заявка відправлена. Очікуй відповідь від адміністратора.")
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if err := b.sender.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		b.logger.Debug("answer callback failed", slog.String("error", err.Error()))
	}
	if cb.Message == nil {
		return nil
	}

	action, rest, _ := strings.Cut(cb.Data, ":")
	switch action {
	case "start_chat":
		return b.handleStartChat(ctx, cb, rest)
	case "delete_user":
		return b.handleDeleteUser(ctx, cb, rest)
	case "set_status":
		return b.handleSetStatus(ctx, cb, rest)
	}
	return nil
}

func (b *Bot) handleStartChat(ctx context.Context, cb *telegram.CallbackQuery, rawID string) error {
	applicantID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}

	threadID, err := b.directory.Open(ctx, applicantID)
	if err != nil {
		if errors.Is(err, applicant.ErrApplicantNotFound) {
			return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "❌ Користувача не знайдено.")
		}
		return err
	}

	a, err := b.applicants.Get(ctx, applicantID)
	if err != nil {
		return err
	}

	markup := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{{
		Text: "➡️ Перейти до чату",
		URL:  topicURL(b.groupID, threadID),
	}}}}
	text := fmt.Sprintf("🔗 Почато чат з %s (ID: %d)", a.DisplayName(), applicantID)
	return b.sender.SendThreadMessage(ctx, b.groupID, threadID, text, markup)
}

func (b *Bot) handleDeleteUser(ctx context.Context, cb *telegram.CallbackQuery, rawID string) error {
	applicantID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	if err := b.coordinator.DeleteApplicant(ctx, applicantID); err != nil {
		if errors.Is(err, applicant.ErrApplicantNotFound) {
			return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "❌ Користувача не знайдено.")
		}
		return err
	}
	return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "🗑️ Заявку видалено.")
}

func (b *Bot) handleSetStatus(ctx context.Context, cb *telegram.CallbackQuery, rest string) error {
	rawID, rawStatus, ok := strings.Cut(rest, ":")
	if !ok {
		return nil
	}
	applicantID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	status := applicant.Status(rawStatus)
	if !status.Valid() {
		return nil
	}

	if status == applicant.StatusAccepted {
		if err := b.coordinator.BeginAcceptance(ctx, cb.From.ID, applicantID); err != nil {
			if errors.Is(err, applicant.ErrApplicantNotFound) {
				return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "❌ Користувача не знайдено.")
			}
			return err
		}
		if err := b.sender.EditMessageReplyMarkup(ctx, cb.Message.Chat.ID, cb.Message.MessageID, nil); err != nil {
			b.logger.Debug("clear card markup failed", slog.String("error", err.Error()))
		}
		return b.sender.SendMessage(ctx, cb.Message.Chat.ID,
			"✍️ Введіть місто та дату прийняття у форматі Місто:РРРР-ММ-ДД, наприклад Львів:2025-09-01.")
	}

	if err := b.coordinator.SetStatus(ctx, applicantID, status); err != nil {
		if errors.Is(err, applicant.ErrApplicantNotFound) {
			return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "❌ Користувача не знайдено.")
		}
		return err
	}
	return b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID,
		fmt.Sprintf("✅ Статус оновлено: %s", status))
}

func summaryCard(a applicant.Applicant) string {
	phone := a.Phone
	if phone == "" {
		phone = "не надано"
	}
	username := a.Username
	link := "❓ Немає username"
	if username != "" {
		link = "https://t.me/" + username
	} else {
		username = "немає"
	}
	return fmt.Sprintf("✅ Новий користувач:\n"+
		"👤 Ім’я: %s\n"+
		"🎂 Вік: %d\n"+
		"🏙️ Місто: %s\n"+
		"📞 Телефон: %s\n"+
		"🔗 Username: @%s\n"+
		"💬 Профіль: %s\n"+
		"🆔 Telegram ID: %d",
		a.Name, a.Age, a.City, phone, username, link, a.TelegramID)
}

func summaryKeyboard(telegramID int64) *telegram.InlineKeyboardMarkup {
	id := strconv.FormatInt(telegramID, 10)
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			{Text: "💬 Почати чат", CallbackData: "start_chat:" + id},
			{Text: "🗑️ Видалити", CallbackData: "delete_user:" + id},
		},
		{
			{Text: "✅ Прийняти", CallbackData: "set_status:" + id + ":Accepted"},
			{Text: "❌ Відхилити", CallbackData: "set_status:" + id + ":Declined"},
		},
	}}
}

func topicURL(groupID, threadID int64) string {
	raw := strconv.FormatInt(groupID, 10)
	raw = strings.TrimPrefix(raw, "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", raw, threadID)
}

func parseCommand(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	command := fields[0]
	if !strings.HasPrefix(command, "/") {
		return "", ""
	}
	if idx := strings.Index(command, "@"); idx != -1 {
		command = command[:idx]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	return command, arg
}
