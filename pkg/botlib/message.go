// Package botlib provides a simple library for building echochat bots.
package botlib

import (
	"strings"
	"time"
)

// CommandPrefix starts a bot command in a chat line, e.g. "!ping"
const CommandPrefix = "!"

// Message represents a chat line received by the bot.
type Message struct {
	Author     string // Identity of the sender; empty for operator messages
	Content    string
	ReceivedAt time.Time
	FromServer bool // Sent by the server operator

	// Internal: the bot's identity for mention detection
	botIdentity string
}

// MentionsMe returns true if the message content mentions the bot.
// Checks for @identity patterns (case-insensitive).
func (m *Message) MentionsMe() bool {
	if m.botIdentity == "" {
		return false
	}

	content := strings.ToLower(m.Content)
	identity := strings.ToLower(m.botIdentity)

	if strings.Contains(content, "@"+identity) {
		return true
	}

	// Also check for identity at start of message (common pattern)
	return strings.HasPrefix(content, identity+":") ||
		strings.HasPrefix(content, identity+",") ||
		strings.HasPrefix(content, identity+" ")
}

// MentionedContent returns the message content with the bot mention removed.
func (m *Message) MentionedContent() string {
	if m.botIdentity == "" {
		return m.Content
	}

	content := m.Content
	identity := m.botIdentity

	content = strings.ReplaceAll(content, "@"+identity, "")
	content = strings.ReplaceAll(content, "@"+strings.ToLower(identity), "")

	lower := strings.ToLower(content)
	lowerIdentity := strings.ToLower(identity)
	for _, sep := range []string{":", ",", " "} {
		if strings.HasPrefix(lower, lowerIdentity+sep) {
			content = content[len(identity)+1:]
			break
		}
	}

	return strings.TrimSpace(content)
}

// Command splits "!name args" into its parts. ok is false for other content.
func (m *Message) Command() (name, args string, ok bool) {
	if !strings.HasPrefix(m.Content, CommandPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(m.Content, CommandPrefix)
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}
