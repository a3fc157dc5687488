package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"intake_bot/internal/applicant"
)

type copyCall struct {
	toChatID   int64
	threadID   int64
	fromChatID int64
	messageID  int64
}

type editCall struct {
	chatID    int64
	messageID int64
	text      string
}

type reactionCall struct {
	chatID    int64
	messageID int64
	emoji     string
}

type deleteCall struct {
	chatID    int64
	messageID int64
}

type fakeGateway struct {
	mu sync.Mutex

	nextThreadID int64
	nextCopyID   int64

	createdTopics   []string
	deletedTopics   []int64
	copies          []copyCall
	textEdits       []editCall
	captionEdits    []editCall
	reactions       []reactionCall
	deletedMessages []deleteCall

	createTopicErr error
	deleteTopicErr error
	copyErr        error
	editErr        error
	reactionErr    error
	deleteMsgErr   error
}

func (g *fakeGateway) CopyMessage(_ context.Context, toChatID, threadID, fromChatID, messageID int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.copyErr != nil {
		return 0, g.copyErr
	}
	g.copies = append(g.copies, copyCall{toChatID, threadID, fromChatID, messageID})
	g.nextCopyID++
	return 1000 + g.nextCopyID, nil
}

func (g *fakeGateway) EditMessageText(_ context.Context, chatID, messageID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.editErr != nil {
		return g.editErr
	}
	g.textEdits = append(g.textEdits, editCall{chatID, messageID, text})
	return nil
}

func (g *fakeGateway) EditMessageCaption(_ context.Context, chatID, messageID int64, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.editErr != nil {
		return g.editErr
	}
	g.captionEdits = append(g.captionEdits, editCall{chatID, messageID, caption})
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteMsgErr != nil {
		return g.deleteMsgErr
	}
	g.deletedMessages = append(g.deletedMessages, deleteCall{chatID, messageID})
	return nil
}

func (g *fakeGateway) SetMessageReaction(_ context.Context, chatID, messageID int64, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reactionErr != nil {
		return g.reactionErr
	}
	g.reactions = append(g.reactions, reactionCall{chatID, messageID, emoji})
	return nil
}

func (g *fakeGateway) CreateForumTopic(_ context.Context, _ int64, name string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createTopicErr != nil {
		return 0, g.createTopicErr
	}
	g.createdTopics = append(g.createdTopics, name)
	g.nextThreadID++
	return 500 + g.nextThreadID, nil
}

func (g *fakeGateway) DeleteForumTopic(_ context.Context, _ int64, threadID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletedTopics = append(g.deletedTopics, threadID)
	if g.deleteTopicErr != nil {
		return g.deleteTopicErr
	}
	return nil
}

const testGroupID int64 = -1002233445566

func newTestApplicant(id int64) applicant.Applicant {
	return applicant.Applicant{
		TelegramID: id,
		Name:       "Олена",
		Age:        19,
		City:       "Київ",
		Username:   "olena",
		Phone:      "+380501112233",
		Status:     applicant.StatusNew,
	}
}

func TestDirectoryOpenCreatesTopic(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{}
	directory := NewDirectory(NewMemoryMappingStore(), applicants, gateway, testGroupID, nil, nil)

	threadID, err := directory.Open(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if threadID == 0 {
		t.Fatalf("expected thread id")
	}
	if len(gateway.createdTopics) != 1 || gateway.createdTopics[0] != "Чат: Олена (@olena)" {
		t.Fatalf("unexpected topics: %v", gateway.createdTopics)
	}
	resolved, err := directory.Resolve(context.Background(), 42)
	if err != nil || resolved != threadID {
		t.Fatalf("expected resolve %d, got %d (%v)", threadID, resolved, err)
	}
	back, err := directory.ResolveApplicant(context.Background(), threadID)
	if err != nil || back != 42 {
		t.Fatalf("expected applicant 42, got %d (%v)", back, err)
	}
}

func TestDirectoryOpenIdempotent(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{}
	directory := NewDirectory(NewMemoryMappingStore(), applicants, gateway, testGroupID, nil, nil)

	first, err := directory.Open(context.Background(), 42)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	second, err := directory.Open(context.Background(), 42)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if first != second {
		t.Fatalf("expected same thread id, got %d and %d", first, second)
	}
	if len(gateway.createdTopics) != 1 {
		t.Fatalf("expected one topic, got %d", len(gateway.createdTopics))
	}
}

func TestDirectoryOpenUnknownApplicant(t *testing.T) {
	directory := NewDirectory(NewMemoryMappingStore(), applicant.NewMemoryStore(), &fakeGateway{}, testGroupID, nil, nil)
	if _, err := directory.Open(context.Background(), 7); !errors.Is(err, applicant.ErrApplicantNotFound) {
		t.Fatalf("expected ErrApplicantNotFound, got %v", err)
	}
}

type racingMappingStore struct {
	MappingStore
	winner ThreadMapping
	reads  int
}

func (s *racingMappingStore) GetByApplicant(_ context.Context, _ int64) (ThreadMapping, error) {
	s.reads++
	if s.reads == 1 {
		return ThreadMapping{}, ErrMappingNotFound
	}
	return s.winner, nil
}

func (s *racingMappingStore) Insert(_ context.Context, _ ThreadMapping) error {
	return ErrMappingExists
}

func TestDirectoryOpenLostInsertRace(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{}
	mappings := &racingMappingStore{winner: ThreadMapping{TelegramID: 42, ThreadID: 777}}
	directory := NewDirectory(mappings, applicants, gateway, testGroupID, nil, nil)

	threadID, err := directory.Open(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if threadID != 777 {
		t.Fatalf("expected winner thread 777, got %d", threadID)
	}
	if len(gateway.deletedTopics) != 1 {
		t.Fatalf("expected orphan topic cleanup, got %v", gateway.deletedTopics)
	}
}

func TestDirectoryOpenCreateFailureFallsBackToMapping(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{createTopicErr: errors.New("topic name already taken")}
	mappings := &racingMappingStore{winner: ThreadMapping{TelegramID: 42, ThreadID: 777}}
	directory := NewDirectory(mappings, applicants, gateway, testGroupID, nil, nil)

	threadID, err := directory.Open(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if threadID != 777 {
		t.Fatalf("expected winner thread 777, got %d", threadID)
	}
}

func TestDirectoryOpenCreateFailureWithoutMapping(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{createTopicErr: errors.New("group is not a forum")}
	directory := NewDirectory(NewMemoryMappingStore(), applicants, gateway, testGroupID, nil, nil)

	if _, err := directory.Open(context.Background(), 42); err == nil {
		t.Fatalf("expected create failure to surface")
	}
}

func TestDirectoryCloseRemoteFailureStillDeletesLocal(t *testing.T) {
	applicants := applicant.NewMemoryStore()
	if err := applicants.Create(context.Background(), newTestApplicant(42)); err != nil {
		t.Fatalf("create applicant: %v", err)
	}
	gateway := &fakeGateway{deleteTopicErr: errors.New("topic already gone")}
	directory := NewDirectory(NewMemoryMappingStore(), applicants, gateway, testGroupID, nil, nil)

	if _, err := directory.Open(context.Background(), 42); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := directory.Close(context.Background(), 42); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := directory.Resolve(context.Background(), 42); !errors.Is(err, ErrMappingNotFound) {
		t.Fatalf("expected mapping removed, got %v", err)
	}
}

func TestDirectoryCloseWithoutMapping(t *testing.T) {
	directory := NewDirectory(NewMemoryMappingStore(), applicant.NewMemoryStore(), &fakeGateway{}, testGroupID, nil, nil)
	if err := directory.Close(context.Background(), 42); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
