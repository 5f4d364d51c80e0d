package service

import (
	"fmt"

	"giftpool/core/telegram/format"
	"giftpool/internal/models"
)

// Event identifies a lifecycle moment that produces outbound notifications.
type Event string

const (
	EventInvited       Event = "participant_invited"
	EventActivated     Event = "collection_activated"
	EventTargetReached Event = "target_reached"
	EventCompleted     Event = "collection_completed"
	EventCancelled     Event = "collection_cancelled"
	EventProgress      Event = "payment_progress"
	EventReminder      Event = "payment_reminder"
)

// Notification is an outbound message intent. Fan-out never performs I/O;
// the bot layer delivers the intents through the sender.
type Notification struct {
	ChatID int64
	Text   string
}

// FanOut computes the recipients and texts for a lifecycle event from a
// collection snapshot. chats maps user ids to their direct chat ids; users
// without a known chat are skipped.
func FanOut(event Event, c *models.Collection, chats map[int64]int64) []Notification {
	if c == nil {
		return nil
	}
	// Intents are delivered with Markdown parse mode; the title is user text.
	title := format.EscapeMD(c.Title)
	var out []Notification
	direct := func(userID int64, text string) {
		if chatID, ok := chats[userID]; ok && chatID != 0 {
			out = append(out, Notification{ChatID: chatID, Text: text})
		}
	}

	switch event {
	case EventInvited:
		text := fmt.Sprintf("You were invited to chip in for \"%s\" (target %s). Use /join_collection %s or /pay %s <amount>.",
			title, c.TargetAmount.StringFixed(2), c.ID, c.ID)
		for _, p := range c.Participants {
			direct(p.UserID, text)
		}
	case EventActivated:
		text := fmt.Sprintf("Collection \"%s\" is now open for contributions. Target: %s.",
			title, c.TargetAmount.StringFixed(2))
		for _, p := range c.Participants {
			direct(p.UserID, text)
		}
	case EventTargetReached:
		direct(c.OrganizerID, fmt.Sprintf("Target reached for \"%s\": %s of %s collected. Use /confirm_gift %s to complete it.",
			title, c.CurrentAmount.StringFixed(2), c.TargetAmount.StringFixed(2), c.ID))
	case EventCompleted:
		text := fmt.Sprintf("Collection \"%s\" is complete. %s was collected. Thank you!",
			title, c.CurrentAmount.StringFixed(2))
		for _, p := range c.Participants {
			direct(p.UserID, text)
		}
		if c.GiftRecipientID != nil {
			direct(*c.GiftRecipientID, fmt.Sprintf("A gift was pooled for you: \"%s\".", title))
		}
	case EventCancelled:
		// Refund notice goes only to participants who actually paid.
		text := fmt.Sprintf("Collection \"%s\" was cancelled. Your contribution will be refunded.", title)
		for _, p := range c.Participants {
			if p.HasPaid {
				direct(p.UserID, text)
			}
		}
	case EventProgress:
		if c.GroupChatID != nil && *c.GroupChatID != 0 {
			out = append(out, Notification{
				ChatID: *c.GroupChatID,
				Text: fmt.Sprintf("\"%s\" progress: %s of %s collected.",
					title, c.CurrentAmount.StringFixed(2), c.TargetAmount.StringFixed(2)),
			})
		}
	case EventReminder:
		text := fmt.Sprintf("Reminder: collection \"%s\" is still short of its target (%s of %s). You can contribute with /pay %s <amount>.",
			title, c.CurrentAmount.StringFixed(2), c.TargetAmount.StringFixed(2), c.ID)
		for _, p := range c.Participants {
			if !p.HasPaid {
				direct(p.UserID, text)
			}
		}
	}
	return out
}
