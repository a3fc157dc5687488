package adminpanel

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Token — короткоживущий пропуск в веб-панель, выданный оператору.
type Token struct {
	Token     string
	IssuedTo  int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

var ErrTokenNotFound = errors.New("admin token not found or expired")

// TokenStore хранит выданные токены. Просроченные записи вычищаются
// лениво при каждой проверке.
type TokenStore interface {
	Save(ctx context.Context, token Token) error
	Get(ctx context.Context, token string) (Token, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

// MemoryTokenStore хранит токены в памяти.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryTokenStore создает хранилище токенов в памяти.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func (s *MemoryTokenStore) Save(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = token
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, token string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tokens[token]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return stored, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *MemoryTokenStore) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stored := range s.tokens {
		if now.After(stored.ExpiresAt) {
			delete(s.tokens, key)
		}
	}
	return nil
}

// Issuer создает токены доступа к панели.
type Issuer struct {
	store TokenStore
	ttl   time.Duration
	clock func() time.Time
}

// NewIssuer создает генератор токенов с фиксированным TTL.
func NewIssuer(store TokenStore, ttl time.Duration) *Issuer {
	return &Issuer{store: store, ttl: ttl, clock: time.Now}
}

// Issue выдает новый токен оператору.
func (i *Issuer) Issue(ctx context.Context, operatorID int64) (Token, error) {
	raw, err := generateToken()
	if err != nil {
		return Token{}, err
	}
	now := i.clock()
	token := Token{
		Token:     raw,
		IssuedTo:  operatorID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.Save(ctx, token); err != nil {
		return Token{}, err
	}
	return token, nil
}

// MembershipChecker проверяет участие оператора в группе модераторов.
type MembershipChecker interface {
	GetChatMember(ctx context.Context, chatID, userID int64) (string, error)
}

// Authenticator проверяет токены панели и, в строгом режиме,
// членство оператора в группе.
type Authenticator struct {
	store   TokenStore
	checker MembershipChecker
	groupID int64
	clock   func() time.Time
}

// NewAuthenticator создает проверку токенов. checker равный nil
// отключает проверку членства.
func NewAuthenticator(store TokenStore, checker MembershipChecker, groupID int64) *Authenticator {
	return &Authenticator{store: store, checker: checker, groupID: groupID, clock: time.Now}
}

// Authenticate разрешает токен в идентификатор оператора.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (int64, error) {
	if rawToken == "" {
		return 0, ErrTokenNotFound
	}
	now := a.clock()
	if err := a.store.PurgeExpired(ctx, now); err != nil {
		return 0, err
	}
	token, err := a.store.Get(ctx, rawToken)
	if err != nil {
		return 0, err
	}
	if now.After(token.ExpiresAt) {
		_ = a.store.Delete(ctx, rawToken)
		return 0, ErrTokenNotFound
	}
	if a.checker != nil {
		status, err := a.checker.GetChatMember(ctx, a.groupID, token.IssuedTo)
		if err != nil {
			return 0, fmt.Errorf("membership check: %w", err)
		}
		switch status {
		case "creator", "administrator", "member":
		default:
			return 0, ErrTokenNotFound
		}
	}
	return token.IssuedTo, nil
}

func generateToken() (string, error) {
	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(seed), nil
}
