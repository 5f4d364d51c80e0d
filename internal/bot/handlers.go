package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"giftpool/core/telegram/format"
	tghelpers "giftpool/core/telegram/helpers"
	"giftpool/core/telegram/keyboard"
	"giftpool/internal/models"
	"giftpool/internal/service"

	tele "gopkg.in/telebot.v4"
)

const (
	usageNewCollection  = "Usage: /new_collection title|description|amount|recipientId|id1,id2,...\nrecipientId and the participant list may be left empty: title|description|amount"
	usageJoin           = "Usage: /join_collection <collectionId>"
	usagePay            = "Usage: /pay <collectionId> <amount>"
	usageStatus         = "Usage: /status <collectionId>"
	usageDetails        = "Usage: /collection_status <collectionId>"
	usageVote           = "Usage: /vote <collectionId> <optionId>"
	usageAddGiftOption  = "Usage: /add_gift_option collectionId|title|description"
	usageUpdateAmount   = "Usage: /update_amount <collectionId> <amount>"
	usageUpdateDeadline = "Usage: /update_deadline <collectionId> <days>"
	usageConfirmGift    = "Usage: /confirm_gift <collectionId>"
	usageCancel         = "Usage: /cancel <collectionId>"
	usageSendReminders  = "Usage: /send_reminders <collectionId>"
	groupCreationPrompt = "Let's set up a collection. Reply with:\ntitle|description|amount|recipientId|deadlineDays\nrecipientId and deadlineDays may be left empty."
)

// authorized loads the collection and checks the caller's role.
func (a *App) authorized(ctx context.Context, id string, userID int64, organizerOnly bool) (*models.Collection, error) {
	c, err := a.collections.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OrganizerID == userID {
		return c, nil
	}
	if organizerOnly {
		return nil, service.ErrUnauthorized
	}
	if c.Participant(userID) == nil {
		return nil, service.ErrUnauthorized
	}
	return c, nil
}

func (a *App) handleStart(c tele.Context) (string, error) {
	err := tghelpers.SendMD(c, fmt.Sprintf("Hi %s! I help groups pool money for gifts.", c.Sender().FirstName), menuMarkup())
	return "", err
}

func (a *App) handleHelp(c tele.Context) (string, error) {
	return helpText, nil
}

// createAndActivate persists a collection and opens it for contributions.
// Both notification batches are delivered as one sequence.
func (a *App) createAndActivate(ctx context.Context, p service.CreateParams) (*models.Collection, error) {
	created, invited, err := a.collections.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	activated, notes, err := a.collections.SetStatus(ctx, created.ID, models.StatusActive)
	if err != nil {
		return nil, err
	}
	a.deliver(ctx, append(invited, notes...))
	return activated, nil
}

func (a *App) handleNewCollection(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	parts, err := splitPipe(commandPayload(c), 3, usageNewCollection)
	if err != nil {
		return "", err
	}
	amount, err := parseAmount(parts[2])
	if err != nil {
		return "", err
	}

	p := service.CreateParams{
		OrganizerID:    c.Sender().ID,
		Title:          parts[0],
		Description:    parts[1],
		TargetAmount:   amount,
		ParticipantIDs: []int64{c.Sender().ID},
	}
	if len(parts) > 3 && parts[3] != "" {
		recipient, err := parseUserID(parts[3])
		if err != nil {
			return "", err
		}
		p.GiftRecipientID = &recipient
	}
	if len(parts) > 4 && parts[4] != "" {
		invited, err := parseUserIDList(parts[4])
		if err != nil {
			return "", err
		}
		p.ParticipantIDs = append(p.ParticipantIDs, invited...)
	}
	if chat := c.Chat(); chat != nil && isGroupChat(chat.ID) {
		gid := chat.ID
		p.GroupChatID = &gid
	}

	created, err := a.createAndActivate(ctx, p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Collection *%s* is open!\nTarget: %s\nShare the id so others can join:\n`%s`",
		format.EscapeMD(created.Title), created.TargetAmount.StringFixed(2), created.ID), nil
}

func (a *App) handleGroupNewCollection(c tele.Context) (string, error) {
	chat := c.Chat()
	if chat == nil || !isGroupChat(chat.ID) {
		return "This command only works in group chats.", nil
	}
	a.startGroupSession(chat.ID, c.Sender().ID)
	err := tghelpers.SendMD(c, groupCreationPrompt, keyboard.ForceReply())
	return "", err
}

func (a *App) handleJoin(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageJoin)
	if err != nil {
		return "", err
	}
	joined, err := a.collections.Join(ctx, args[0], c.Sender().ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You joined *%s*. Contribute with /pay %s <amount>.", format.EscapeMD(joined.Title), joined.ID), nil
}

func (a *App) handlePay(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 2, usagePay)
	if err != nil {
		return "", err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", err
	}
	return a.recordPayment(ctx, args[0], c.Sender().ID, amount)
}

// recordPayment is shared between /pay, the quick-amount buttons and claim
// confirmation.
func (a *App) recordPayment(ctx context.Context, collectionID string, userID int64, dec decimal.Decimal) (string, error) {
	ok, notes, err := a.collections.AddPayment(ctx, collectionID, userID, dec)
	if err != nil {
		return "", err
	}
	if !ok {
		return "The payment could not be recorded. Make sure the collection is active and you are a participant.", nil
	}
	a.deliver(ctx, notes)
	updated, err := a.collections.Get(ctx, collectionID)
	if err != nil {
		return "Payment recorded.", nil
	}
	return fmt.Sprintf("Recorded %s for *%s*. Collected %s of %s.",
		dec.StringFixed(2), format.EscapeMD(updated.Title), updated.CurrentAmount.StringFixed(2), updated.TargetAmount.StringFixed(2)), nil
}

func (a *App) handleStatus(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageStatus)
	if err != nil {
		return "", err
	}
	col, err := a.authorized(ctx, args[0], c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	return renderStatus(col), nil
}

func (a *App) handleCollectionStatus(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageDetails)
	if err != nil {
		return "", err
	}
	col, err := a.authorized(ctx, args[0], c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	return renderDetails(col), nil
}

func (a *App) handleVote(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 2, usageVote)
	if err != nil {
		return "", err
	}
	ok, err := a.collections.Vote(ctx, args[0], c.Sender().ID, args[1])
	if err != nil {
		return "", err
	}
	if !ok {
		return "The vote was not counted. Check the collection and option ids, and make sure you are a participant.", nil
	}
	return "Vote registered. Voting for the same option again withdraws your vote.", nil
}

func (a *App) handleAddGiftOption(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	parts, err := splitPipe(commandPayload(c), 2, usageAddGiftOption)
	if err != nil {
		return "", err
	}
	if _, err := a.authorized(ctx, parts[0], c.Sender().ID, false); err != nil {
		return "", err
	}
	desc := ""
	if len(parts) > 2 {
		desc = parts[2]
	}
	opt, err := a.collections.AddGiftOption(ctx, parts[0], parts[1], desc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Gift option *%s* added. Vote with /vote %s %s", format.EscapeMD(opt.Title), parts[0], opt.ID), nil
}

func (a *App) handleUpdateAmount(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 2, usageUpdateAmount)
	if err != nil {
		return "", err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", err
	}
	if _, err := a.authorized(ctx, args[0], c.Sender().ID, true); err != nil {
		return "", err
	}
	ok, err := a.collections.UpdateTargetAmount(ctx, args[0], amount)
	if err != nil {
		return "", err
	}
	if !ok {
		return "The target could not be changed.", nil
	}
	return fmt.Sprintf("Target updated to %s.", amount.StringFixed(2)), nil
}

func (a *App) handleUpdateDeadline(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 2, usageUpdateDeadline)
	if err != nil {
		return "", err
	}
	days, err := parseDays(args[1])
	if err != nil {
		return "", err
	}
	deadline := deadlineFromDays(days)
	if deadline == nil {
		return "", &usageError{usage: usageUpdateDeadline}
	}
	if _, err := a.authorized(ctx, args[0], c.Sender().ID, true); err != nil {
		return "", err
	}
	ok, err := a.collections.UpdateDeadline(ctx, args[0], *deadline)
	if err != nil {
		return "", err
	}
	if !ok {
		return "The deadline could not be changed.", nil
	}
	return fmt.Sprintf("Deadline set to %s.", deadline.Format("2006-01-02")), nil
}

func (a *App) handleConfirmGift(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageConfirmGift)
	if err != nil {
		return "", err
	}
	col, err := a.authorized(ctx, args[0], c.Sender().ID, true)
	if err != nil {
		return "", err
	}
	if !col.TargetReached() {
		return fmt.Sprintf("The target is not reached yet: %s of %s.",
			col.CurrentAmount.StringFixed(2), col.TargetAmount.StringFixed(2)), nil
	}
	_, notes, err := a.collections.SetStatus(ctx, col.ID, models.StatusCompleted)
	if err != nil {
		return "", err
	}
	a.deliver(ctx, notes)
	return fmt.Sprintf("🎉 Collection *%s* completed. Everyone has been notified.", format.EscapeMD(col.Title)), nil
}

func (a *App) handleCancel(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageCancel)
	if err != nil {
		return "", err
	}
	col, err := a.authorized(ctx, args[0], c.Sender().ID, true)
	if err != nil {
		return "", err
	}
	_, notes, err := a.collections.SetStatus(ctx, col.ID, models.StatusCancelled)
	if err != nil {
		return "", err
	}
	a.deliver(ctx, notes)
	return fmt.Sprintf("Collection *%s* cancelled. Contributors have been notified about refunds.", format.EscapeMD(col.Title)), nil
}

func (a *App) handleSendReminders(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageSendReminders)
	if err != nil {
		return "", err
	}
	if _, err := a.authorized(ctx, args[0], c.Sender().ID, true); err != nil {
		return "", err
	}
	notes, err := a.collections.Reminders(ctx, args[0])
	if err != nil {
		return "", err
	}
	a.deliver(ctx, notes)
	return fmt.Sprintf("Sent %d reminder(s).", len(notes)), nil
}

func (a *App) handleMyCollections(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	cols, err := a.collections.ListByUser(ctx, c.Sender().ID)
	if err != nil {
		return "", err
	}
	return renderList(cols), nil
}

// deadlineFromDays converts a day count into an absolute deadline.
func deadlineFromDays(days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := time.Now().UTC().AddDate(0, 0, days)
	return &t
}
