package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ArgSep separates positional arguments inside a callback payload,
// e.g. "coll_0f3a:2" for an action that targets option 2 of a collection.
const ArgSep = ":"

// PayloadInt64 parses callback payload as int64.
func PayloadInt64(c tele.Context) (int64, error) {
	p := CallbackPayload(c)
	return strconv.ParseInt(p, 10, 64)
}

// PayloadInt parses callback payload as int.
func PayloadInt(c tele.Context) (int, error) {
	p := CallbackPayload(c)
	return strconv.Atoi(p)
}

// PayloadParts splits the callback payload into parts using the given separator.
func PayloadParts(c tele.Context, sep string) ([]string, error) {
	p := CallbackPayload(c)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// PayloadArgs splits the callback payload into colon-separated arguments.
func PayloadArgs(c tele.Context) ([]string, error) {
	return PayloadParts(c, ArgSep)
}

// JoinArgs encodes positional arguments into a callback payload.
func JoinArgs(args ...string) string {
	return strings.Join(args, ArgSep)
}
