package state

import tele "gopkg.in/telebot.v4"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation in the chat.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a chat.
// Keying by chat lets any member of a group answer a prompt started there.
type Session struct {
	State    State
	TempData map[string]interface{}
}

// Manager orchestrates chat sessions and FSM state transitions.
type Manager interface {
	Get(chatID int64) *Session
	Set(chatID int64, state State)
	SetTemp(chatID int64, key string, value interface{})
	ClearTemp(chatID int64, key string)
	GetTemp(chatID int64, key string) (interface{}, bool)
	GetTempInt64(chatID int64, key string) (int64, bool)
	GetTempString(chatID int64, key string) (string, bool)
	Clear(chatID int64)

	// Dialog state
	SetState(chatID int64, st State)
	GetState(chatID int64) State
	HasState(chatID int64) bool
	ClearState(chatID int64)

	InProgress(chatID int64) bool
	ManagerHandler(c tele.Context) error
}
