package state

import (
	"sync"

	"giftpool/core/logger"
	tghelpers "giftpool/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryManager constructs an in-memory Manager implementation.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns the session for a chat if it exists, otherwise returns a default idle session.
func (m *memoryManager) Get(chatID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.sessions[chatID]; ok {
		return session
	}

	return &Session{State: StateIdle, TempData: make(map[string]interface{})}
}

// Set updates the state for a chat, creating a new session if necessary.
func (m *memoryManager) Set(chatID int64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[chatID]
	if !ok {
		session = &Session{TempData: make(map[string]interface{})}
		m.sessions[chatID] = session
	}
	session.State = state
}

// SetTemp stores a temporary key/value pair for the given chat session.
func (m *memoryManager) SetTemp(chatID int64, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[chatID]
	if !ok {
		session = &Session{TempData: make(map[string]interface{})}
		m.sessions[chatID] = session
	}
	session.TempData[key] = value
}

// GetTemp retrieves a temporary value by key for the given chat session.
func (m *memoryManager) GetTemp(chatID int64, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[chatID]
	if !ok {
		return nil, false
	}
	val, ok := session.TempData[key]
	return val, ok
}

// GetTempInt64 retrieves a temporary value by key and asserts it as int64.
func (m *memoryManager) GetTempInt64(chatID int64, key string) (int64, bool) {
	val, found := m.GetTemp(chatID, key)
	if !found {
		return 0, false
	}
	v, ok := val.(int64)
	if !ok {
		return 0, false
	}
	return v, true
}

// GetTempString retrieves a temporary value by key and asserts it as string.
func (m *memoryManager) GetTempString(chatID int64, key string) (string, bool) {
	val, found := m.GetTemp(chatID, key)
	if !found {
		return "", false
	}
	v, ok := val.(string)
	if !ok {
		return "", false
	}
	return v, true
}

// ClearTemp removes a temporary key/value pair for the given chat session.
func (m *memoryManager) ClearTemp(chatID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[chatID]
	if ok {
		delete(session.TempData, key)
	}
}

// Clear removes the entire session for a chat.
func (m *memoryManager) Clear(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, chatID)
}

// SetState sets the FSM state for the given chat.
func (m *memoryManager) SetState(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[chatID]
	if !ok {
		sess = &Session{TempData: make(map[string]interface{})}
		m.sessions[chatID] = sess
	}
	sess.State = st
}

// GetState returns the current FSM state of a chat, or StateIdle if none exists.
func (m *memoryManager) GetState(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[chatID]; ok {
		return sess.State
	}
	return StateIdle
}

// ClearState resets the FSM state to idle for a chat without removing session data.
func (m *memoryManager) ClearState(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		sess.State = StateIdle
	}
}

// HasState checks if a chat has an active state other than idle.
func (m *memoryManager) HasState(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[chatID]
	return ok && sess.State != StateIdle
}

// InProgress reports whether the chat currently has an active FSM state.
func (m *memoryManager) InProgress(chatID int64) bool {
	return m.HasState(chatID)
}

// ManagerHandler executes the handler function registered for the chat's current state, if any.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	current := m.GetState(chat.ID)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chat.ID),
		slog.String("state", string(current)),
	)

	if handler, ok := fsmHandlers[current]; ok {
		return handler(c)
	}
	return nil
}
