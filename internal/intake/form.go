// Package intake ведет пошаговую анкету заявителя: имя, возраст,
// город, телефон. Состояние разговора живет в памяти процесса.
package intake

import (
	"strconv"
	"strings"
	"sync"

	"intake_bot/internal/applicant"
	"intake_bot/internal/telegram"
)

const minAge = 16

type step int

const (
	stepName step = iota
	stepAge
	stepCity
	stepPhone
)

type session struct {
	step step
	name string
	age  int
	city string
}

// Form хранит активные анкеты по идентификатору пользователя.
type Form struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

// NewForm создает пустой набор анкет.
func NewForm() *Form {
	return &Form{sessions: make(map[int64]*session)}
}

// Begin открывает анкету и возвращает первый вопрос.
func (f *Form) Begin(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[userID] = &session{step: stepName}
	return "Привіт! Як тебе звати?"
}

// Active сообщает, заполняет ли пользователь анкету.
func (f *Form) Active(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[userID]
	return ok
}

// Cancel прерывает анкету.
func (f *Form) Cancel(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userID)
}

// StepResult — ответ анкеты на очередное сообщение.
type StepResult struct {
	Reply       string
	ReplyMarkup any
	Done        bool
	Refused     bool
	Applicant   applicant.Applicant
}

// Advance обрабатывает очередное сообщение анкеты. Второе значение
// ложно, когда анкета не начата.
func (f *Form) Advance(msg *telegram.Message) (StepResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	userID := msg.From.ID
	s, ok := f.sessions[userID]
	if !ok {
		return StepResult{}, false
	}

	switch s.step {
	case stepName:
		name := strings.TrimSpace(msg.Text)
		if name == "" {
			return StepResult{Reply: "Привіт! Як тебе звати?"}, true
		}
		s.name = name
		s.step = stepAge
		return StepResult{Reply: "Скільки тобі років?"}, true

	case stepAge:
		age, err := strconv.Atoi(strings.TrimSpace(msg.Text))
		if err != nil {
			return StepResult{Reply: "Будь ласка, введи число."}, true
		}
		if age < minAge {
			delete(f.sessions, userID)
			return StepResult{
				Reply:   "Вибач, але ти не можеш приєднатися. Проте у нас є реферальна система — заробляй, запрошуючи інших!",
				Done:    true,
				Refused: true,
			}, true
		}
		s.age = age
		s.step = stepCity
		return StepResult{Reply: "З якого ти міста?"}, true

	case stepCity:
		city := strings.TrimSpace(msg.Text)
		if city == "" {
			return StepResult{Reply: "З якого ти міста?"}, true
		}
		s.city = city
		s.step = stepPhone
		keyboard := &telegram.ReplyKeyboardMarkup{
			Keyboard: [][]telegram.KeyboardButton{{{
				Text:           "📱 Поділитися телефоном",
				RequestContact: true,
			}}},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
		return StepResult{
			Reply:       "📱 Хочеш поділитися номером? Натисни кнопку або введи вручну.",
			ReplyMarkup: keyboard,
		}, true

	case stepPhone:
		phone := strings.TrimSpace(msg.Text)
		if msg.Contact != nil {
			phone = msg.Contact.PhoneNumber
		}
		delete(f.sessions, userID)
		return StepResult{
			Done: true,
			Applicant: applicant.Applicant{
				TelegramID: userID,
				Name:       s.name,
				Age:        s.age,
				City:       s.city,
				Username:   msg.From.Username,
				Phone:      phone,
				Status:     applicant.StatusNew,
			},
		}, true
	}

	return StepResult{}, false
}
