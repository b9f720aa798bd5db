package botlib

import (
	"fmt"
)

// Context provides methods for responding to messages.
// It is passed to message handlers.
type Context struct {
	bot     *Bot
	message *Message
}

// Message returns the message that triggered this context.
func (c *Context) Message() *Message {
	return c.message
}

// Say broadcasts content to every participant.
func (c *Context) Say(content string) error {
	return c.bot.say(content)
}

// Reply broadcasts content addressed to the message author.
// Server messages have no author, so the reply is unaddressed.
func (c *Context) Reply(content string) error {
	if c.message.Author == "" {
		return c.bot.say(content)
	}
	return c.bot.say("@" + c.message.Author + " " + content)
}

// Author returns the identity of the message author.
func (c *Context) Author() string {
	return c.message.Author
}

// BotIdentity returns the bot's identity.
func (c *Context) BotIdentity() string {
	return c.bot.identity
}

// Log logs a message using the bot's logger.
func (c *Context) Log(format string, args ...interface{}) {
	if c.bot.logger != nil {
		c.bot.logger.Printf(format, args...)
	}
}

// String returns a debug representation of the context.
func (c *Context) String() string {
	return fmt.Sprintf("Context{author=%s, content=%q}", c.message.Author, c.message.Content)
}
