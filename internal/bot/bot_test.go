package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"intake_bot/internal/adminpanel"
	"intake_bot/internal/applicant"
	"intake_bot/internal/intake"
	"intake_bot/internal/relay"
	"intake_bot/internal/settings"
	"intake_bot/internal/telegram"
)

const testGroupID int64 = -1002233445566
const testAdminID int64 = 900

type sentMessage struct {
	chatID int64
	text   string
	markup any
}

type threadMessage struct {
	chatID   int64
	threadID int64
	text     string
	markup   any
}

type textEdit struct {
	chatID    int64
	messageID int64
	text      string
}

type fakeSender struct {
	messages       []sentMessage
	threadMessages []threadMessage
	edits          []textEdit
	markupCleared  int
	callbacks      []string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) SendMessageWithMarkup(_ context.Context, chatID int64, text string, replyMarkup any) error {
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, markup: replyMarkup})
	return nil
}

func (f *fakeSender) SendThreadMessage(_ context.Context, chatID, threadID int64, text string, replyMarkup any) error {
	f.threadMessages = append(f.threadMessages, threadMessage{chatID, threadID, text, replyMarkup})
	return nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, callbackID string) error {
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

func (f *fakeSender) EditMessageText(_ context.Context, chatID, messageID int64, text string) error {
	f.edits = append(f.edits, textEdit{chatID, messageID, text})
	return nil
}

func (f *fakeSender) EditMessageReplyMarkup(_ context.Context, _, _ int64, _ any) error {
	f.markupCleared++
	return nil
}

func (f *fakeSender) lastMessage() sentMessage {
	if len(f.messages) == 0 {
		return sentMessage{}
	}
	return f.messages[len(f.messages)-1]
}

type fakeGateway struct {
	copies        int
	lastCopyChat  int64
	deletedPairs  []int64
	nextThreadID  int64
	createdTopics int
}

func (g *fakeGateway) CopyMessage(_ context.Context, toChatID, _, _, _ int64) (int64, error) {
	g.copies++
	g.lastCopyChat = toChatID
	return int64(2000 + g.copies), nil
}

func (g *fakeGateway) EditMessageText(_ context.Context, _, _ int64, _ string) error    { return nil }
func (g *fakeGateway) EditMessageCaption(_ context.Context, _, _ int64, _ string) error { return nil }

func (g *fakeGateway) DeleteMessage(_ context.Context, _, messageID int64) error {
	g.deletedPairs = append(g.deletedPairs, messageID)
	return nil
}

func (g *fakeGateway) SetMessageReaction(_ context.Context, _, _ int64, _ string) error { return nil }

func (g *fakeGateway) CreateForumTopic(_ context.Context, _ int64, _ string) (int64, error) {
	g.createdTopics++
	g.nextThreadID++
	return 500 + g.nextThreadID, nil
}

func (g *fakeGateway) DeleteForumTopic(_ context.Context, _, _ int64) error { return nil }

type testEnv struct {
	bot        *Bot
	sender     *fakeSender
	gateway    *fakeGateway
	applicants *applicant.MemoryStore
	mappings   *relay.MemoryMappingStore
	log        *relay.MemoryLogStore
	pending    *relay.MemoryPendingStore
	settings   *settings.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sender := &fakeSender{}
	gateway := &fakeGateway{}
	applicants := applicant.NewMemoryStore()
	mappings := relay.NewMemoryMappingStore()
	log := relay.NewMemoryLogStore()
	pending := relay.NewMemoryPendingStore(time.Minute)
	settingsStore := settings.NewMemoryStore()

	directory := relay.NewDirectory(mappings, applicants, gateway, testGroupID, nil, nil)
	mirror := relay.NewMirror(mappings, log, applicants, gateway, testGroupID, nil, nil)
	propagator := relay.NewPropagator(log, relay.NewMemoryReactionStore(), gateway, testGroupID, nil, nil)
	coordinator := relay.NewStatusCoordinator(applicants, directory, pending, nil)
	issuer := adminpanel.NewIssuer(adminpanel.NewMemoryTokenStore(), time.Hour)

	b := New(Deps{
		Sender:      sender,
		Form:        intake.NewForm(),
		Applicants:  applicants,
		Directory:   directory,
		Mirror:      mirror,
		Propagator:  propagator,
		Coordinator: coordinator,
		Tokens:      issuer,
		Settings:    settingsStore,
		GroupID:     testGroupID,
		AdminID:     testAdminID,
		AdminURL:    "https://panel.example.com",
	})
	return &testEnv{
		bot:        b,
		sender:     sender,
		gateway:    gateway,
		applicants: applicants,
		mappings:   mappings,
		log:        log,
		pending:    pending,
		settings:   settingsStore,
	}
}

func privateUpdate(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      telegram.User{ID: userID, Username: "olena"},
		Chat:      telegram.Chat{ID: userID, Type: "private"},
		Text:      text,
	}}
}

func groupUpdate(userID, threadID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID:       10,
		MessageThreadID: threadID,
		From:            telegram.User{ID: userID},
		Chat:            telegram.Chat{ID: testGroupID, Type: "supergroup"},
		Text:            text,
	}}
}

func callbackUpdate(userID int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb-1",
		From: telegram.User{ID: userID},
		Data: data,
		Message: &telegram.Message{
			MessageID: 77,
			Chat:      telegram.Chat{ID: testGroupID, Type: "supergroup"},
		},
	}}
}

func mustHandle(t *testing.T, b *Bot, update telegram.Update) {
	t.Helper()
	if err := b.HandleUpdate(context.Background(), update); err != nil {
		t.Fatalf("handle update: %v", err)
	}
}

func TestBotStartBeginsForm(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(42, "/start"))
	if len(env.sender.messages) != 1 || env.sender.messages[0].chatID != 42 {
		t.Fatalf("expected question to user, got %+v", env.sender.messages)
	}
	if env.sender.messages[0].text == "" {
		t.Fatalf("expected first form question")
	}
}

func TestBotStartForExistingApplicant(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	mustHandle(t, env.bot, privateUpdate(42, "/start"))
	if !strings.Contains(env.sender.lastMessage().text, "вже подали") {
		t.Fatalf("expected duplicate warning, got %q", env.sender.lastMessage().text)
	}
}

func TestBotFormCompletionPostsSummaryCard(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(42, "/start"))
	mustHandle(t, env.bot, privateUpdate(42, "Олена"))
	mustHandle(t, env.bot, privateUpdate(42, "19"))
	mustHandle(t, env.bot, privateUpdate(42, "Київ"))
	mustHandle(t, env.bot, privateUpdate(42, "+380501112233"))

	a, err := env.applicants.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("applicant not created: %v", err)
	}
	if a.Status != applicant.StatusNew {
		t.Fatalf("expected status New, got %s", a.Status)
	}

	var card sentMessage
	for _, msg := range env.sender.messages {
		if msg.chatID == testGroupID {
			card = msg
		}
	}
	if card.chatID != testGroupID {
		t.Fatalf("expected summary card in group, got %+v", env.sender.messages)
	}
	if !strings.Contains(card.text, "Олена") || !strings.Contains(card.text, "Київ") {
		t.Fatalf("unexpected card: %q", card.text)
	}
	markup, ok := card.markup.(*telegram.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected two keyboard rows, got %+v", card.markup)
	}
	if markup.InlineKeyboard[0][0].CallbackData != "start_chat:42" {
		t.Fatalf("unexpected callback data: %q", markup.InlineKeyboard[0][0].CallbackData)
	}
}

func TestBotUnderageRefusalSkipsCard(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(42, "/start"))
	mustHandle(t, env.bot, privateUpdate(42, "Іван"))
	mustHandle(t, env.bot, privateUpdate(42, "15"))

	if _, err := env.applicants.Get(context.Background(), 42); err == nil {
		t.Fatalf("underage applicant must not be stored")
	}
	for _, msg := range env.sender.messages {
		if msg.chatID == testGroupID {
			t.Fatalf("no card expected for refused applicant")
		}
	}
}

func TestBotCallbackStartChatOpensTopic(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Username: "olena", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}

	mustHandle(t, env.bot, callbackUpdate(testAdminID, "start_chat:42"))
	if env.gateway.createdTopics != 1 {
		t.Fatalf("expected topic created, got %d", env.gateway.createdTopics)
	}
	if len(env.sender.threadMessages) != 1 {
		t.Fatalf("expected link message in thread, got %+v", env.sender.threadMessages)
	}
	link := env.sender.threadMessages[0]
	markup, ok := link.markup.(*telegram.InlineKeyboardMarkup)
	if !ok || !strings.HasPrefix(markup.InlineKeyboard[0][0].URL, "https://t.me/c/2233445566/") {
		t.Fatalf("unexpected link markup: %+v", link.markup)
	}
	if len(env.sender.callbacks) != 1 {
		t.Fatalf("callback must be answered")
	}
}

func TestBotCallbackDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}

	mustHandle(t, env.bot, callbackUpdate(testAdminID, "delete_user:42"))
	if _, err := env.applicants.Get(context.Background(), 42); err == nil {
		t.Fatalf("expected applicant removed")
	}
	if len(env.sender.edits) != 1 || !strings.Contains(env.sender.edits[0].text, "видалено") {
		t.Fatalf("expected card edited, got %+v", env.sender.edits)
	}
}

func TestBotCallbackDecline(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}

	mustHandle(t, env.bot, callbackUpdate(testAdminID, "set_status:42:Declined"))
	a, err := env.applicants.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get applicant: %v", err)
	}
	if a.Status != applicant.StatusDeclined {
		t.Fatalf("expected Declined, got %s", a.Status)
	}
}

func TestBotAcceptanceFlowThroughGroupReply(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}

	mustHandle(t, env.bot, callbackUpdate(testAdminID, "set_status:42:Accepted"))
	if !strings.Contains(env.sender.lastMessage().text, "Місто:РРРР-ММ-ДД") {
		t.Fatalf("expected metadata prompt, got %q", env.sender.lastMessage().text)
	}

	a, err := env.applicants.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get applicant: %v", err)
	}
	if a.Status != applicant.StatusNew {
		t.Fatalf("status must not change before metadata, got %s", a.Status)
	}

	mustHandle(t, env.bot, groupUpdate(testAdminID, 0, "Львів:2025-09-01"))
	a, err = env.applicants.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get applicant: %v", err)
	}
	if a.Status != applicant.StatusAccepted || a.AcceptedCity != "Львів" {
		t.Fatalf("expected acceptance applied, got %+v", a)
	}
	if !strings.Contains(env.sender.lastMessage().text, "прийнято") {
		t.Fatalf("expected confirmation, got %q", env.sender.lastMessage().text)
	}
}

func TestBotBadAcceptanceReplyKeepsPending(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	mustHandle(t, env.bot, callbackUpdate(testAdminID, "set_status:42:Accepted"))

	mustHandle(t, env.bot, groupUpdate(testAdminID, 0, "просто текст"))
	if !strings.Contains(env.sender.lastMessage().text, "Не вдалося розібрати") {
		t.Fatalf("expected corrective reply, got %q", env.sender.lastMessage().text)
	}

	mustHandle(t, env.bot, groupUpdate(testAdminID, 0, "Львів:2025-09-01"))
	a, err := env.applicants.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get applicant: %v", err)
	}
	if a.Status != applicant.StatusAccepted {
		t.Fatalf("retry must complete acceptance, got %s", a.Status)
	}
}

func TestBotGroupGeneralTextWithoutPendingIgnored(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, groupUpdate(700, 0, "звичайне обговорення"))
	if len(env.sender.messages) != 0 {
		t.Fatalf("expected no replies, got %+v", env.sender.messages)
	}
}

func TestBotGroupThreadMessageRelays(t *testing.T) {
	env := newTestEnv(t)
	if err := env.applicants.Create(context.Background(), applicant.Applicant{TelegramID: 42, Name: "Олена", Status: applicant.StatusNew}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	if err := env.mappings.Insert(context.Background(), relay.ThreadMapping{TelegramID: 42, ThreadID: 501}); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	mustHandle(t, env.bot, groupUpdate(testAdminID, 501, "Доброго дня!"))
	if env.gateway.copies != 1 || env.gateway.lastCopyChat != 42 {
		t.Fatalf("expected copy to applicant, got %d to %d", env.gateway.copies, env.gateway.lastCopyChat)
	}
}

func TestBotPrivateMessageRelaysToThread(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mappings.Insert(context.Background(), relay.ThreadMapping{TelegramID: 42, ThreadID: 501}); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	mustHandle(t, env.bot, privateUpdate(42, "є новини?"))
	if env.gateway.copies != 1 || env.gateway.lastCopyChat != testGroupID {
		t.Fatalf("expected copy to group, got %d to %d", env.gateway.copies, env.gateway.lastCopyChat)
	}
}

func TestBotDeleteCommandRemovesPair(t *testing.T) {
	env := newTestEnv(t)
	entry := relay.MessageLogEntry{StaffMessageID: 100, ApplicantMessageID: 200, TelegramID: 42, ThreadID: 501, Kind: relay.KindText}
	if err := env.log.Insert(context.Background(), entry); err != nil {
		t.Fatalf("insert log entry: %v", err)
	}

	update := groupUpdate(testAdminID, 501, "/delete")
	update.Message.ReplyToMessage = &telegram.Message{MessageID: 100}
	mustHandle(t, env.bot, update)

	if len(env.gateway.deletedPairs) != 2 {
		t.Fatalf("expected both sides deleted, got %+v", env.gateway.deletedPairs)
	}
	if len(env.log.Entries()) != 0 {
		t.Fatalf("expected log entry removed")
	}
}

func TestBotEditedMessagePropagates(t *testing.T) {
	env := newTestEnv(t)
	entry := relay.MessageLogEntry{StaffMessageID: 100, ApplicantMessageID: 200, TelegramID: 42, ThreadID: 501, Kind: relay.KindText}
	if err := env.log.Insert(context.Background(), entry); err != nil {
		t.Fatalf("insert log entry: %v", err)
	}

	update := telegram.Update{EditedMessage: &telegram.Message{
		MessageID: 100,
		From:      telegram.User{ID: testAdminID},
		Chat:      telegram.Chat{ID: testGroupID, Type: "supergroup"},
		Text:      "виправлено",
	}}
	mustHandle(t, env.bot, update)
	// Правка уходит через gateway, отправитель не задействован.
	if len(env.sender.messages) != 0 {
		t.Fatalf("expected no sender calls, got %+v", env.sender.messages)
	}
}

func TestBotAdminCommandIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(testAdminID, "/admin"))
	msg := env.sender.lastMessage()
	if !strings.Contains(msg.text, "https://panel.example.com/?token=") {
		t.Fatalf("expected panel link, got %q", msg.text)
	}
}

func TestBotAdminCommandIgnoredForOthers(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(42, "/admin"))
	if len(env.sender.messages) != 0 {
		t.Fatalf("expected silence, got %+v", env.sender.messages)
	}
}

func TestBotSetGroupStoresSetting(t *testing.T) {
	env := newTestEnv(t)
	update := telegram.Update{Message: &telegram.Message{
		MessageID: 3,
		From:      telegram.User{ID: testAdminID},
		Chat:      telegram.Chat{ID: -1009999, Type: "supergroup"},
		Text:      "/setgroup",
	}}
	mustHandle(t, env.bot, update)

	value, err := env.settings.Get(context.Background(), settings.KeyStaffGroupID)
	if err != nil || value != "-1009999" {
		t.Fatalf("expected stored group id, got %q (%v)", value, err)
	}
}

func TestBotCancelClosesForm(t *testing.T) {
	env := newTestEnv(t)
	mustHandle(t, env.bot, privateUpdate(42, "/start"))
	mustHandle(t, env.bot, privateUpdate(42, "/cancel"))
	if !strings.Contains(env.sender.lastMessage().text, "скасовано") {
		t.Fatalf("expected cancel confirmation, got %q", env.sender.lastMessage().text)
	}

	// После отмены личные сообщения идут в релей, а не в анкету.
	mustHandle(t, env.bot, privateUpdate(42, "Олена"))
	if _, err := env.applicants.Get(context.Background(), 42); err == nil {
		t.Fatalf("cancelled form must not create applicant")
	}
}
