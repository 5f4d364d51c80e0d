package bot

import (
	"fmt"

	tghelpers "giftpool/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	usageFreeze      = "Usage: /freeze <collectionId>"
	usageUnfreeze    = "Usage: /unfreeze <collectionId>"
	usageCancelTx    = "Usage: /cancel_tx transactionId|reason"
	usageCancelCol   = "Usage: /cancel_collection <collectionId>"
	usageBlockUser   = "Usage: /block_user userId|reason"
	usageUnblockUser = "Usage: /unblock_user <userId>"
)

func (a *App) handleFreeze(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageFreeze)
	if err != nil {
		return "", err
	}
	if err := a.collections.Freeze(ctx, args[0], c.Sender().ID); err != nil {
		return "", err
	}
	return "Collection frozen. Contributions are paused.", nil
}

func (a *App) handleUnfreeze(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageUnfreeze)
	if err != nil {
		return "", err
	}
	if err := a.collections.Unfreeze(ctx, args[0], c.Sender().ID); err != nil {
		return "", err
	}
	return "Collection unfrozen. Contributions are accepted again.", nil
}

func (a *App) handleCancelTx(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	parts, err := splitPipe(commandPayload(c), 2, usageCancelTx)
	if err != nil {
		return "", err
	}
	ok, err := a.collections.CancelTransaction(ctx, parts[0], parts[1], c.Sender().ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "Nothing to cancel: the transaction is unknown or already cancelled.", nil
	}
	return fmt.Sprintf("Transaction `%s` cancelled and the amounts reversed.", parts[0]), nil
}

func (a *App) handleCancelCollection(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageCancelCol)
	if err != nil {
		return "", err
	}
	notes, err := a.collections.CancelByAdmin(ctx, args[0], c.Sender().ID)
	if err != nil {
		return "", err
	}
	a.deliver(ctx, notes)
	return "Collection cancelled. Contributors have been notified about refunds.", nil
}

func (a *App) handleBlockUser(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	parts, err := splitPipe(commandPayload(c), 2, usageBlockUser)
	if err != nil {
		return "", err
	}
	userID, err := parseUserID(parts[0])
	if err != nil {
		return "", err
	}
	if err := a.users.Block(ctx, userID, parts[1], c.Sender().ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("User %d blocked.", userID), nil
}

func (a *App) handleUnblockUser(c tele.Context) (string, error) {
	ctx := tghelpers.BuildContext(c)
	args, err := splitArgs(commandPayload(c), 1, usageUnblockUser)
	if err != nil {
		return "", err
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return "", err
	}
	if err := a.users.Unblock(ctx, userID, c.Sender().ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("User %d unblocked.", userID), nil
}
