package state

import "testing"

func TestManagerStateLifecycle(t *testing.T) {
	m := NewMemoryManager()
	const chat = int64(-100500)

	if m.InProgress(chat) {
		t.Fatal("fresh chat reported in progress")
	}
	m.SetState(chat, State("awaiting_title"))
	if !m.InProgress(chat) {
		t.Fatal("chat with active state not reported in progress")
	}
	if got := m.GetState(chat); got != State("awaiting_title") {
		t.Fatalf("state = %q", got)
	}

	m.ClearState(chat)
	if m.InProgress(chat) {
		t.Fatal("cleared state still in progress")
	}
	if got := m.GetState(chat); got != StateIdle {
		t.Fatalf("state after clear = %q, want idle", got)
	}
}

func TestManagerTempDataSurvivesStateClear(t *testing.T) {
	m := NewMemoryManager()
	const chat = int64(-42)

	m.SetState(chat, State("awaiting_target"))
	m.SetTemp(chat, "title", "birthday gift")
	m.SetTemp(chat, "recipient_id", int64(777))

	m.ClearState(chat)
	if v, ok := m.GetTempString(chat, "title"); !ok || v != "birthday gift" {
		t.Fatalf("title = %q, %v", v, ok)
	}
	if v, ok := m.GetTempInt64(chat, "recipient_id"); !ok || v != 777 {
		t.Fatalf("recipient_id = %d, %v", v, ok)
	}

	m.Clear(chat)
	if _, ok := m.GetTemp(chat, "title"); ok {
		t.Fatal("temp data survived full clear")
	}
}

func TestManagerChatsAreIndependent(t *testing.T) {
	m := NewMemoryManager()
	m.SetState(-1, State("awaiting_title"))
	if m.InProgress(-2) {
		t.Fatal("state leaked across chats")
	}
}
