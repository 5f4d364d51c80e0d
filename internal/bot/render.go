package bot

import (
	"fmt"
	"strings"

	"giftpool/core/telegram/callbacks"
	"giftpool/core/telegram/format"
	"giftpool/core/telegram/keyboard"
	"giftpool/internal/models"

	tele "gopkg.in/telebot.v4"
)

var statusLabels = map[models.CollectionStatus]string{
	models.StatusPending:   "⏳ pending",
	models.StatusActive:    "🟢 active",
	models.StatusFrozen:    "🧊 frozen",
	models.StatusCompleted: "✅ completed",
	models.StatusCancelled: "🚫 cancelled",
}

func statusLabel(s models.CollectionStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// renderStatus is the short progress summary shown by /status.
func renderStatus(c *models.Collection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", format.EscapeMD(c.Title))
	if c.Description != nil && *c.Description != "" {
		fmt.Fprintf(&b, "%s\n", format.EscapeMD(*c.Description))
	}
	fmt.Fprintf(&b, "Status: %s\n", statusLabel(c.Status))
	fmt.Fprintf(&b, "Collected: %s of %s\n", c.CurrentAmount.StringFixed(2), c.TargetAmount.StringFixed(2))
	paid := 0
	for _, p := range c.Participants {
		if p.HasPaid {
			paid++
		}
	}
	fmt.Fprintf(&b, "Participants: %d (%d paid)\n", len(c.Participants), paid)
	if c.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", c.Deadline.Format("2006-01-02"))
	}
	return b.String()
}

// renderDetails extends the summary with gift options and vote counts.
func renderDetails(c *models.Collection) string {
	var b strings.Builder
	b.WriteString(renderStatus(c))
	if len(c.GiftOptions) > 0 {
		b.WriteString("\nGift options:\n")
		for _, o := range c.GiftOptions {
			fmt.Fprintf(&b, "• %s — %d vote(s)  `%s`\n", format.EscapeMD(o.Title), o.Votes, o.ID)
		}
	}
	fmt.Fprintf(&b, "\nCollection id: `%s`", c.ID)
	return b.String()
}

// renderList summarises the user's collections for /my_collections.
func renderList(cols []models.Collection) string {
	if len(cols) == 0 {
		return "You have no collections yet. Use /new_collection to start one."
	}
	var b strings.Builder
	b.WriteString("*Your collections:*\n")
	for _, c := range cols {
		fmt.Fprintf(&b, "• %s — %s, %s of %s  `%s`\n",
			format.EscapeMD(c.Title), statusLabel(c.Status),
			c.CurrentAmount.StringFixed(2), c.TargetAmount.StringFixed(2), c.ID)
	}
	return b.String()
}

const helpText = `*Commands*
/new_collection title|description|amount|recipientId|id1,id2,... — start a collection and invite participants
/group_new_collection — start one from a group chat
/join_collection <id> — join an existing collection
/pay <id> <amount> — contribute
/status <id> — progress summary
/collection_status <id> — detailed view with gift options
/vote <id> <optionId> — vote for a gift option
/add_gift_option id|title|description — suggest a gift
/update_amount <id> <amount> — change the target (organizer)
/update_deadline <id> <days> — change the deadline (organizer)
/confirm_gift <id> — complete the collection (organizer)
/cancel <id> — cancel the collection (organizer)
/send_reminders <id> — nudge unpaid participants (organizer)
/my_collections — list your collections`

const howItWorksText = `*How it works*
1. The organizer creates a collection with a target amount.
2. Invited people join and chip in with /pay or the payment buttons.
3. Everyone can suggest gift options and vote; one vote per person.
4. When the target is reached the organizer confirms the gift.
5. If the collection is cancelled, contributors are notified about refunds.`

// menuMarkup builds the /start inline keyboard.
func menuMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🎁 New collection", Unique: cbNewCollection},
			{Text: "📋 My collections", Unique: cbMyCollections},
		},
		[]keyboard.InlineBtn{
			{Text: "❓ Help", Unique: cbHelp},
			{Text: "💡 How it works", Unique: cbHowItWorks},
		},
	)
}

// paymentOptionsMarkup offers quick amounts plus a manual claim button.
func paymentOptionsMarkup(collectionID string, quickAmounts []int) *tele.ReplyMarkup {
	var amountBtns []keyboard.InlineBtn
	for _, v := range quickAmounts {
		amountBtns = append(amountBtns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%d", v),
			Unique: cbPayAmount,
			Data:   callbacks.JoinArgs(collectionID, fmt.Sprintf("%d", v)),
		})
	}
	markup := keyboard.InlineButtonsNPerRow(amountBtns, 2)
	extra := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "✅ I paid another way", Unique: cbIPaid, Data: collectionID}},
		[]keyboard.InlineBtn{{Text: "⬅️ Back", Unique: cbBackToMain}},
	)
	markup.InlineKeyboard = append(markup.InlineKeyboard, extra.InlineKeyboard...)
	return markup
}

// invitationMarkup is attached to invitation messages.
func invitationMarkup(collectionID string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🙋 Join", Unique: cbJoin, Data: collectionID},
			{Text: "🙅 Decline", Unique: cbDecline, Data: collectionID},
		},
		[]keyboard.InlineBtn{
			{Text: "💸 Pay", Unique: cbPay, Data: collectionID},
			{Text: "📊 Status", Unique: cbStatus, Data: collectionID},
		},
	)
}

// claimMarkup lets the organizer settle a manual payment claim.
func claimMarkup(collectionID string, userID int64) *tele.ReplyMarkup {
	data := callbacks.JoinArgs(collectionID, fmt.Sprintf("%d", userID))
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "✅ Confirm", Unique: cbConfirmPayment, Data: data},
			{Text: "❌ Reject", Unique: cbRejectPayment, Data: data},
		},
	)
}
