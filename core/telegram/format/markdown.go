// Package format holds text shaping helpers for outbound Telegram messages.
package format

import "strings"

// Markdown V1 entity characters. An unbalanced one in user text makes the
// Bot API reject the whole send with "can't parse entities".
var mdReplacer = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscapeMD escapes user-supplied text for interpolation into a
// ParseMode-Markdown message body.
func EscapeMD(text string) string {
	return mdReplacer.Replace(text)
}
