package bot

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	tele "gopkg.in/telebot.v4"
)

// usageError carries a user-visible usage hint for malformed command input.
type usageError struct {
	usage string
}

func (e *usageError) Error() string { return e.usage }

// Code classifies the failure for handler summary logs.
func (e *usageError) Code() string { return "USAGE" }

// commandPayload extracts the argument text after the command token.
// Commands routed through OnText carry no telebot payload, so the raw
// message text is the source of truth.
func commandPayload(c tele.Context) string {
	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

// splitPipe splits payload on '|', trims each field and enforces a minimum
// arity. Used by the multi-field creation commands.
func splitPipe(payload string, min int, usage string) ([]string, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, &usageError{usage: usage}
	}
	parts := strings.Split(payload, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < min {
		return nil, &usageError{usage: usage}
	}
	return parts, nil
}

// splitArgs splits payload on whitespace and enforces a minimum arity.
func splitArgs(payload string, min int, usage string) ([]string, error) {
	parts := strings.Fields(payload)
	if len(parts) < min {
		return nil, &usageError{usage: usage}
	}
	return parts, nil
}

// parseAmount parses a strictly positive decimal amount.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &usageError{usage: "Amount must be a number, e.g. 250 or 99.50."}
	}
	if !d.IsPositive() {
		return decimal.Zero, &usageError{usage: "Amount must be greater than zero."}
	}
	return d, nil
}

// parseUserID parses a Telegram user id argument.
func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &usageError{usage: "User id must be a positive number."}
	}
	return id, nil
}

// parseUserIDList parses a comma separated list of Telegram user ids.
// Empty entries between commas are skipped.
func parseUserIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseUserID(part)
		if err != nil {
			return nil, &usageError{usage: "Participant ids must be positive numbers separated by commas, e.g. 123,456."}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDays parses an optional day count; empty means none.
func parseDays(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &usageError{usage: "Deadline must be a number of days."}
	}
	return n, nil
}

// isGroupChat reports whether the chat id denotes a group conversation.
// Telegram assigns negative ids to groups and positive ids to private chats.
func isGroupChat(chatID int64) bool {
	return chatID < 0
}
