package services

import "strings"

const (
	titleMaxLen   = 50
	titleTruncLen = 47
)

// DeriveTitle computes a conversation title from its first user
// message: trimmed, and cut to 47 runes plus "..." when longer than 50.
func DeriveTitle(firstUserMessage string) string {
	trimmed := strings.TrimSpace(firstUserMessage)
	runes := []rune(trimmed)
	if len(runes) <= titleMaxLen {
		return trimmed
	}
	return string(runes[:titleTruncLen]) + "..."
}
