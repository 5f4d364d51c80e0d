// Package state provides a lightweight FSM/session manager for Telegram bots.
// Sessions are keyed by chat id so multi-step flows in group chats work
// regardless of which member replies.
package state
