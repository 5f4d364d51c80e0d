// Package bot wires the gifting services to Telegram: command parsing,
// authorization, conversation sessions and notification delivery.
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"giftpool/core/logger"
	tg "giftpool/core/telegram"
	"giftpool/core/telegram/commands"
	tghelpers "giftpool/core/telegram/helpers"
	"giftpool/core/telegram/router"
	tgsender "giftpool/core/telegram/sender"
	"giftpool/core/telegram/state"
	"giftpool/internal/service"
	"giftpool/internal/store"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Callback action keys. Payload arguments are colon separated.
const (
	cbNewCollection      = "new_collection"
	cbGroupNewCollection = "group_new_collection"
	cbJoin               = "join"
	cbPay                = "pay"
	cbPayAmount          = "pay_amount"
	cbPaymentOptions     = "payment_options"
	cbIPaid              = "i_paid"
	cbStatus             = "status"
	cbCollectionStatus   = "collection_status"
	cbSendReminders      = "send_reminders"
	cbBackToMain         = "back_to_main"
	cbHelp               = "help"
	cbHowItWorks         = "how_it_works"
	cbMyCollections      = "my_collections"
	cbDecline            = "decline"
	cbConfirmPayment     = "confirm_payment"
	cbRejectPayment      = "reject_payment"
)

// App glues configuration, services and the Telegram runtime together.
type App struct {
	cfg         *Config
	store       store.Store
	users       *service.Users
	collections *service.Collections
	fsm         state.Manager
	claims      *claimBox

	bot atomic.Pointer[tele.Bot]
}

// New builds the application on top of an initialized store.
func New(cfg *Config, st store.Store) *App {
	return &App{
		cfg:         cfg,
		store:       st,
		users:       service.NewUsers(st),
		collections: service.NewCollections(st),
		fsm:         state.NewMemoryManager(),
		claims:      newClaimBox(),
	}
}

// TelegramRunOptions assembles the runtime configuration for the core runner.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.registerCommands(reg)
	a.registerCallbacks(reg)
	a.registerSessions()

	core := &a.cfg.Core

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, "This command is for administrators only.")
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, reg, router.TextOptions{
		UnknownText: func(c tele.Context) error {
			return tghelpers.SendText(c, "I did not understand that. Try /help.")
		},
	})...)

	return tg.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			MinInterval:    time.Duration(core.Sender.MinIntervalMS) * time.Millisecond,
			SuppressWindow: time.Duration(core.Sender.SuppressWindowMS) * time.Millisecond,
		},
		Middlewares: tg.DefaultMiddlewares(core, func(c tele.Context) error {
			return tghelpers.SendText(c, "Too fast. Give it a second and try again.")
		}),
		Routes: routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.bot.Store(rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.bot.Store(nil)
			return nil
		},
	}, nil
}

func (a *App) registerCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{Handler: a.reply(a.handleStart), Description: "Main menu"})
	reg.RegisterCommand("/help", commands.Command{Handler: a.reply(a.handleHelp), Description: "Command reference"})
	reg.RegisterCommand("/new_collection", commands.Command{Handler: a.reply(a.handleNewCollection), Description: "Start a collection"})
	reg.RegisterCommand("/group_new_collection", commands.Command{Handler: a.reply(a.handleGroupNewCollection), Description: "Start a collection from a group chat"})
	reg.RegisterCommand("/join_collection", commands.Command{Handler: a.reply(a.handleJoin), Description: "Join a collection"})
	reg.RegisterCommand("/pay", commands.Command{Handler: a.reply(a.handlePay), Description: "Contribute to a collection"})
	reg.RegisterCommand("/status", commands.Command{Handler: a.reply(a.handleStatus), Description: "Collection progress"})
	reg.RegisterCommand("/collection_status", commands.Command{Handler: a.reply(a.handleCollectionStatus), Description: "Detailed collection view"})
	reg.RegisterCommand("/vote", commands.Command{Handler: a.reply(a.handleVote), Description: "Vote for a gift option"})
	reg.RegisterCommand("/add_gift_option", commands.Command{Handler: a.reply(a.handleAddGiftOption), Description: "Suggest a gift option"})
	reg.RegisterCommand("/update_amount", commands.Command{Handler: a.reply(a.handleUpdateAmount), Description: "Change the target amount"})
	reg.RegisterCommand("/update_deadline", commands.Command{Handler: a.reply(a.handleUpdateDeadline), Description: "Change the deadline"})
	reg.RegisterCommand("/confirm_gift", commands.Command{Handler: a.reply(a.handleConfirmGift), Description: "Complete the collection"})
	reg.RegisterCommand("/cancel", commands.Command{Handler: a.reply(a.handleCancel), Description: "Cancel the collection"})
	reg.RegisterCommand("/send_reminders", commands.Command{Handler: a.reply(a.handleSendReminders), Description: "Remind unpaid participants"})
	reg.RegisterCommand("/my_collections", commands.Command{Handler: a.reply(a.handleMyCollections), Description: "List your collections"})

	reg.RegisterCommand("/freeze", commands.Command{Handler: a.reply(a.handleFreeze), Description: "Freeze a collection", AdminOnly: true, Hidden: true})
	reg.RegisterCommand("/unfreeze", commands.Command{Handler: a.reply(a.handleUnfreeze), Description: "Unfreeze a collection", AdminOnly: true, Hidden: true})
	reg.RegisterCommand("/cancel_tx", commands.Command{Handler: a.reply(a.handleCancelTx), Description: "Cancel a transaction", AdminOnly: true, Hidden: true})
	reg.RegisterCommand("/cancel_collection", commands.Command{Handler: a.reply(a.handleCancelCollection), Description: "Cancel any collection", AdminOnly: true, Hidden: true})
	reg.RegisterCommand("/block_user", commands.Command{Handler: a.reply(a.handleBlockUser), Description: "Block a user", AdminOnly: true, Hidden: true})
	reg.RegisterCommand("/unblock_user", commands.Command{Handler: a.reply(a.handleUnblockUser), Description: "Unblock a user", AdminOnly: true, Hidden: true})
}

func (a *App) registerCallbacks(reg *tg.Registry) {
	_ = reg.RegisterCallback(cbNewCollection, a.reply(a.cbNewCollection))
	_ = reg.RegisterCallback(cbGroupNewCollection, a.reply(a.cbGroupNewCollection))
	_ = reg.RegisterCallback(cbJoin, a.reply(a.cbJoin))
	_ = reg.RegisterCallback(cbPay, a.reply(a.cbPaymentOptions))
	_ = reg.RegisterCallback(cbPaymentOptions, a.reply(a.cbPaymentOptions))
	_ = reg.RegisterCallback(cbPayAmount, a.reply(a.cbPayAmount))
	_ = reg.RegisterCallback(cbIPaid, a.reply(a.cbIPaid))
	_ = reg.RegisterCallback(cbStatus, a.reply(a.cbStatus))
	_ = reg.RegisterCallback(cbCollectionStatus, a.reply(a.cbCollectionStatus))
	_ = reg.RegisterCallback(cbSendReminders, a.reply(a.cbSendReminders))
	_ = reg.RegisterCallback(cbBackToMain, a.reply(a.cbBackToMain))
	_ = reg.RegisterCallback(cbHelp, a.reply(a.cbHelp))
	_ = reg.RegisterCallback(cbHowItWorks, a.reply(a.cbHowItWorks))
	_ = reg.RegisterCallback(cbMyCollections, a.reply(a.cbMyCollections))
	_ = reg.RegisterCallback(cbDecline, a.reply(a.cbDecline))
	_ = reg.RegisterCallback(cbConfirmPayment, a.reply(a.cbConfirmPayment))
	_ = reg.RegisterCallback(cbRejectPayment, a.reply(a.cbRejectPayment))
}

// replyFunc handlers return the reply text, or "" when they already
// responded through a keyboard or flow.
type replyFunc func(c tele.Context) (string, error)

// reply adapts a replyFunc to telebot: the identity is ensured, blocked
// users are turned away, typed errors become user-visible messages and are
// still returned for the handler summary log.
func (a *App) reply(h replyFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if sender := c.Sender(); sender != nil {
			profile := service.Profile{
				ID:        sender.ID,
				Username:  sender.Username,
				FirstName: sender.FirstName,
				LastName:  sender.LastName,
			}
			if chat := c.Chat(); chat != nil && !isGroupChat(chat.ID) {
				profile.ChatID = chat.ID
			}
			if _, err := a.users.Ensure(ctx, profile); err != nil {
				logger.Warn(ctx, "bot", "user.ensure.fail", slog.String("err", err.Error()))
			}
			if a.users.IsBlocked(ctx, sender.ID) {
				return tghelpers.SendText(c, "Your access to this bot has been restricted.")
			}
		}

		text, err := h(c)
		if err != nil {
			_ = tghelpers.SendText(c, userMessage(err))
			return err
		}
		if text == "" {
			return nil
		}
		return tghelpers.SendMD(c, text)
	}
}

// userMessage translates engine errors into replies safe to show users.
func userMessage(err error) string {
	var usage *usageError
	if errors.As(err, &usage) {
		return usage.usage
	}
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		return validation.Msg
	}
	var transition *service.InvalidTransitionError
	if errors.As(err, &transition) {
		return "That is not possible in the collection's current state."
	}
	if errors.Is(err, service.ErrNotFound) {
		return "Collection not found. Check the id and try again."
	}
	if errors.Is(err, service.ErrUnauthorized) {
		return "You are not allowed to do that."
	}
	return "Something went wrong. Please try again later."
}

// deliver sends notification intents through the async sender.
// Failures are logged and never affect the triggering operation.
func (a *App) deliver(ctx context.Context, notes []service.Notification) {
	bot := a.bot.Load()
	if bot == nil || len(notes) == 0 {
		return
	}
	for _, n := range notes {
		if err := tghelpers.SendToChat(ctx, bot, n.ChatID, n.Text); err != nil {
			logger.Warn(ctx, "bot", "notify.fail",
				slog.Int64("chat_id", n.ChatID),
				slog.String("err", err.Error()),
			)
		}
	}
}
