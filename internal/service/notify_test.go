package service

import (
	"strings"
	"testing"

	"giftpool/internal/models"
)

func fanOutFixture() (*models.Collection, map[int64]int64) {
	recipient := int64(9)
	group := int64(-100)
	c := &models.Collection{
		ID:              "col-1",
		Title:           "farewell gift",
		TargetAmount:    dec("1000"),
		CurrentAmount:   dec("400"),
		Status:          models.StatusActive,
		OrganizerID:     1,
		GiftRecipientID: &recipient,
		GroupChatID:     &group,
		Participants: []models.Participant{
			{CollectionID: "col-1", UserID: 1, Contribution: dec("400"), HasPaid: true},
			{CollectionID: "col-1", UserID: 2},
			{CollectionID: "col-1", UserID: 3},
		},
	}
	chats := map[int64]int64{1: 11, 2: 22, 3: 33, 9: 99}
	return c, chats
}

func chatIDs(notes []Notification) map[int64]int {
	out := make(map[int64]int)
	for _, n := range notes {
		out[n.ChatID]++
	}
	return out
}

func TestFanOutInvitedReachesAllParticipants(t *testing.T) {
	c, chats := fanOutFixture()
	got := chatIDs(FanOut(EventInvited, c, chats))
	for _, chat := range []int64{11, 22, 33} {
		if got[chat] != 1 {
			t.Fatalf("chat %d notified %d times, want 1", chat, got[chat])
		}
	}
	if got[99] != 0 {
		t.Fatal("recipient must not learn about the collection")
	}
}

func TestFanOutTargetReachedOrganizerOnly(t *testing.T) {
	c, chats := fanOutFixture()
	notes := FanOut(EventTargetReached, c, chats)
	if len(notes) != 1 || notes[0].ChatID != 11 {
		t.Fatalf("notes = %+v, want exactly the organizer chat", notes)
	}
}

func TestFanOutCompletedIncludesRecipient(t *testing.T) {
	c, chats := fanOutFixture()
	got := chatIDs(FanOut(EventCompleted, c, chats))
	if got[99] != 1 {
		t.Fatal("recipient not notified on completion")
	}
	for _, chat := range []int64{11, 22, 33} {
		if got[chat] != 1 {
			t.Fatalf("chat %d notified %d times, want 1", chat, got[chat])
		}
	}
}

func TestFanOutCancelledOnlyPaidParticipants(t *testing.T) {
	c, chats := fanOutFixture()
	got := chatIDs(FanOut(EventCancelled, c, chats))
	if got[11] != 1 {
		t.Fatal("paid participant not notified about refund")
	}
	if got[22] != 0 || got[33] != 0 {
		t.Fatal("unpaid participants must not get a refund notice")
	}
}

func TestFanOutProgressGoesToGroupChat(t *testing.T) {
	c, chats := fanOutFixture()
	notes := FanOut(EventProgress, c, chats)
	if len(notes) != 1 || notes[0].ChatID != -100 {
		t.Fatalf("notes = %+v, want only the group chat", notes)
	}

	c.GroupChatID = nil
	if notes := FanOut(EventProgress, c, chats); len(notes) != 0 {
		t.Fatalf("unbound collection produced progress notes: %+v", notes)
	}
}

func TestFanOutReminderOnlyUnpaid(t *testing.T) {
	c, chats := fanOutFixture()
	got := chatIDs(FanOut(EventReminder, c, chats))
	if got[11] != 0 {
		t.Fatal("paid participant reminded")
	}
	if got[22] != 1 || got[33] != 1 {
		t.Fatalf("unpaid reminders = %v", got)
	}
}

func TestFanOutSkipsUnknownChats(t *testing.T) {
	c, chats := fanOutFixture()
	delete(chats, 2)
	got := chatIDs(FanOut(EventInvited, c, chats))
	if got[22] != 0 {
		t.Fatal("notified a user with no known chat")
	}
	if got[11] != 1 || got[33] != 1 {
		t.Fatalf("remaining participants = %v", got)
	}
}

func TestFanOutEscapesMarkdownInTitle(t *testing.T) {
	c, chats := fanOutFixture()
	c.Title = "surprise *party*"
	notes := FanOut(EventInvited, c, chats)
	if len(notes) == 0 {
		t.Fatal("no notifications produced")
	}
	for _, n := range notes {
		if strings.Contains(n.Text, "*party*") {
			t.Fatalf("title interpolated unescaped: %q", n.Text)
		}
		if !strings.Contains(n.Text, `\*party\*`) {
			t.Fatalf("escaped title missing: %q", n.Text)
		}
	}
}
