package bot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"giftpool/core/logger"
	"giftpool/core/telegram/callbacks"
	"giftpool/core/telegram/format"
	tghelpers "giftpool/core/telegram/helpers"
	"giftpool/internal/service"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

func (a *App) cbNewCollection(c tele.Context) (string, error) {
	return "Send the collection details as:\n/new_collection title|description|amount|recipientId|id1,id2,...", nil
}

func (a *App) cbGroupNewCollection(c tele.Context) (string, error) {
	return a.handleGroupNewCollection(c)
}

func (a *App) cbJoin(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)
	if id == "" {
		return "", service.ErrNotFound
	}
	joined, err := a.collections.Join(ctx, id, c.Sender().ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You joined *%s*. Contribute with /pay %s <amount>.", format.EscapeMD(joined.Title), joined.ID), nil
}

func (a *App) cbPaymentOptions(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)
	col, err := a.authorized(ctx, id, c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	err = tghelpers.SendMD(c,
		fmt.Sprintf("How much do you want to add to *%s*?", format.EscapeMD(col.Title)),
		paymentOptionsMarkup(col.ID, a.cfg.Core.Payments.QuickAmounts))
	return "", err
}

func (a *App) cbPayAmount(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := callbacks.PayloadArgs(c)
	if err != nil || len(args) != 2 {
		return "", service.ErrNotFound
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", err
	}
	return a.recordPayment(ctx, args[0], c.Sender().ID, amount)
}

// cbIPaid raises a manual payment claim for the organizer to settle. The
// claimed amount is the equal split of the target across participants.
func (a *App) cbIPaid(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)
	col, err := a.authorized(ctx, id, c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	if len(col.Participants) == 0 {
		return "", service.ErrNotFound
	}

	share := col.TargetAmount.Div(decimal.NewFromInt(int64(len(col.Participants)))).Round(2)
	a.claims.Put(col.ID, c.Sender().ID, share)

	user, err := a.users.Get(ctx, c.Sender().ID)
	name := ""
	if err == nil {
		name = user.DisplayName()
	}
	a.sendTo(ctx, a.organizerChat(ctx, col.OrganizerID),
		fmt.Sprintf("%s says they paid %s for *%s* outside the bot. Confirm it?",
			format.EscapeMD(name), share.StringFixed(2), format.EscapeMD(col.Title)),
		claimMarkup(col.ID, c.Sender().ID))

	return "Noted! The organizer will confirm your payment.", nil
}

func (a *App) cbStatus(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	col, err := a.authorized(ctx, callbacks.CallbackPayload(c), c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	return renderStatus(col), nil
}

func (a *App) cbCollectionStatus(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	col, err := a.authorized(ctx, callbacks.CallbackPayload(c), c.Sender().ID, false)
	if err != nil {
		return "", err
	}
	return renderDetails(col), nil
}

func (a *App) cbSendReminders(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)
	if _, err := a.authorized(ctx, id, c.Sender().ID, true); err != nil {
		return "", err
	}
	notes, err := a.collections.Reminders(ctx, id)
	if err != nil {
		return "", err
	}
	a.deliver(ctx, notes)
	return fmt.Sprintf("Sent %d reminder(s).", len(notes)), nil
}

func (a *App) cbBackToMain(c tele.Context) (string, error) {
	err := tghelpers.EditOrSendMD(c, "What would you like to do?", menuMarkup())
	return "", err
}

func (a *App) cbHelp(c tele.Context) (string, error) {
	return helpText, nil
}

func (a *App) cbHowItWorks(c tele.Context) (string, error) {
	return howItWorksText, nil
}

func (a *App) cbMyCollections(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	cols, err := a.collections.ListByUser(ctx, c.Sender().ID)
	if err != nil {
		return "", err
	}
	return renderList(cols), nil
}

func (a *App) cbDecline(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)
	if err := a.collections.Decline(ctx, id, c.Sender().ID); err != nil {
		return "", err
	}
	return "You are out of this collection.", nil
}

func (a *App) cbConfirmPayment(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	collectionID, userID, err := a.claimArgs(ctx, c)
	if err != nil {
		return "", err
	}
	amount, ok := a.claims.Take(collectionID, userID)
	if !ok {
		return "No pending payment claim for that participant.", nil
	}
	reply, err := a.recordPayment(ctx, collectionID, userID, amount)
	if err != nil {
		return "", err
	}
	a.notifyUser(ctx, userID, fmt.Sprintf("Your payment of %s was confirmed by the organizer.", amount.StringFixed(2)))
	return reply, nil
}

func (a *App) cbRejectPayment(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	collectionID, userID, err := a.claimArgs(ctx, c)
	if err != nil {
		return "", err
	}
	if _, ok := a.claims.Take(collectionID, userID); !ok {
		return "No pending payment claim for that participant.", nil
	}
	a.notifyUser(ctx, userID, "The organizer could not confirm your payment. Please check with them.")
	return "Claim rejected. Nothing was recorded.", nil
}

// claimArgs parses confirm/reject payloads and enforces organizer role.
func (a *App) claimArgs(ctx context.Context, c tele.Context) (string, int64, error) {
	args, err := callbacks.PayloadArgs(c)
	if err != nil || len(args) != 2 {
		return "", 0, service.ErrNotFound
	}
	userID, err := parseUserID(args[1])
	if err != nil {
		return "", 0, err
	}
	if _, err := a.authorized(ctx, args[0], c.Sender().ID, true); err != nil {
		return "", 0, err
	}
	return args[0], userID, nil
}

// organizerChat resolves the organizer's direct chat, falling back to the
// user id which equals the private chat id for Telegram users.
func (a *App) organizerChat(ctx context.Context, organizerID int64) int64 {
	if u, err := a.users.Get(ctx, organizerID); err == nil && u.ChatID != 0 {
		return u.ChatID
	}
	return organizerID
}

// notifyUser sends a direct message to a user's private chat, best effort.
func (a *App) notifyUser(ctx context.Context, userID int64, text string) {
	chatID := userID
	if u, err := a.users.Get(ctx, userID); err == nil && u.ChatID != 0 {
		chatID = u.ChatID
	}
	bot := a.bot.Load()
	if bot == nil {
		return
	}
	if err := tghelpers.SendToChat(ctx, bot, chatID, text); err != nil {
		logger.Warn(ctx, "bot", "notify.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

// sendTo delivers text with a keyboard to an arbitrary chat.
func (a *App) sendTo(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) {
	bot := a.bot.Load()
	if bot == nil || chatID == 0 {
		return
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	if _, err := bot.Send(tele.ChatID(chatID), text, opts); err != nil {
		logger.Warn(ctx, "bot", "send.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}
