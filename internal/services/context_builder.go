package services

import "github.com/chatflow/chatflow/internal/models"

// ChatMessage is the role/content pair sent to the AI provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildContext assembles the bounded transcript for a completion call.
// Messages must arrive oldest→newest; the newest ones are kept up to
// maxMessages and maxChars, dropping the oldest first and never cutting
// inside a message. System messages are always retained and don't count
// against either budget.
func BuildContext(messages []models.Message, maxMessages, maxChars int) []ChatMessage {
	var system, recent []models.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			recent = append(recent, m)
		}
	}

	// Walk backwards from the newest message until a budget is hit.
	start := len(recent)
	chars := 0
	for start > 0 {
		if maxMessages > 0 && len(recent)-start >= maxMessages {
			break
		}
		c := len(recent[start-1].Content)
		if maxChars > 0 && chars+c > maxChars {
			if start == len(recent) {
				// Keep at least the newest message even when it alone
				// blows the budget; an empty context is worse.
				start--
				chars += c
			}
			break
		}
		start--
		chars += c
	}

	out := make([]ChatMessage, 0, len(system)+len(recent)-start)
	for _, m := range system {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	for _, m := range recent[start:] {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
