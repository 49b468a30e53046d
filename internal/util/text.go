package util

import (
	"strings"
	"unicode/utf8"
)

// SanitizeErrorText makes an error message safe for a Postgres text column.
// NUL bytes and invalid UTF-8 are dropped, surrounding whitespace trimmed,
// and the result cut to at most limit bytes on a rune boundary. A limit of
// zero or less keeps the full message.
func SanitizeErrorText(msg string, limit int) string {
	msg = strings.ReplaceAll(strings.ToValidUTF8(msg, ""), "\x00", "")
	msg = strings.TrimSpace(msg)
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
