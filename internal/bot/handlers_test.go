package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"giftpool/internal/store"
)

// stubContext implements the handful of tele.Context methods handlers touch.
// Anything else panics, which keeps the stub honest about what a handler uses.
type stubContext struct {
	tele.Context
	text   string
	sender *tele.User
	chat   *tele.Chat
	data   map[string]interface{}
}

func (s *stubContext) Text() string        { return s.text }
func (s *stubContext) Sender() *tele.User  { return s.sender }
func (s *stubContext) Chat() *tele.Chat    { return s.chat }
func (s *stubContext) Update() tele.Update { return tele.Update{} }

func (s *stubContext) Get(key string) interface{} { return s.data[key] }

func (s *stubContext) Set(key string, val interface{}) {
	if s.data == nil {
		s.data = make(map[string]interface{})
	}
	s.data[key] = val
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	return New(&Config{}, store.NewMemory())
}

func TestNewCollectionEnrollsListedParticipants(t *testing.T) {
	a := newTestApp(t)
	c := &stubContext{
		text:   "/new_collection Gift|for Anna|1000||2,3",
		sender: &tele.User{ID: 1, FirstName: "Org"},
		chat:   &tele.Chat{ID: 1},
	}

	reply, err := a.handleNewCollection(c)
	if err != nil {
		t.Fatalf("handleNewCollection: %v", err)
	}
	if !strings.Contains(reply, "is open") {
		t.Fatalf("reply = %q", reply)
	}

	cols, err := a.collections.ListByUser(context.Background(), 2)
	if err != nil || len(cols) != 1 {
		t.Fatalf("collections for invited user 2: %v (err %v)", cols, err)
	}
	col := &cols[0]
	if len(col.Participants) != 3 {
		t.Fatalf("participants = %d, want organizer plus the two listed", len(col.Participants))
	}
	for _, id := range []int64{1, 2, 3} {
		if col.Participant(id) == nil {
			t.Errorf("user %d not enrolled", id)
		}
	}
}

func TestNewCollectionRejectsMalformedParticipantList(t *testing.T) {
	a := newTestApp(t)
	c := &stubContext{
		text:   "/new_collection Gift|x|100||2,abc",
		sender: &tele.User{ID: 1},
		chat:   &tele.Chat{ID: 1},
	}

	_, err := a.handleNewCollection(c)
	var usage *usageError
	if !errors.As(err, &usage) {
		t.Fatalf("err = %v, want usageError", err)
	}
	if cols, _ := a.collections.ListByUser(context.Background(), 1); len(cols) != 0 {
		t.Fatalf("collection persisted despite malformed participant list: %v", cols)
	}
}
