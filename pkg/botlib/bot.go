package botlib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aeolun/echochat/pkg/client"
)

// ErrRejected is returned by Run when the server refuses the bot's login
var ErrRejected = errors.New("rejected by server")

// MessageHandler is called when a new message is received.
type MessageHandler func(ctx *Context, msg *Message)

// Config holds the bot configuration.
type Config struct {
	// Server address (host:port, or a tcp://, ssh:// or ws:// URL)
	Server string

	// Identity the bot logs in with; a single word
	Identity string

	// Client options, e.g. SSH host key checking
	Client client.Options

	// Logger for debug output (optional, defaults to stdout)
	Logger *log.Logger
}

// Bot represents an echochat bot instance.
type Bot struct {
	config   Config
	identity string
	logger   *log.Logger

	mu   sync.Mutex
	conn *client.Client

	// Handlers
	onMessage  MessageHandler
	onMention  MessageHandler
	onServer   MessageHandler
	commands   map[string]MessageHandler
	commandsMu sync.RWMutex
}

// New creates a new Bot with the given configuration.
func New(config Config) *Bot {
	if config.Logger == nil {
		config.Logger = log.New(os.Stdout, "[bot] ", log.LstdFlags)
	}

	return &Bot{
		config:   config,
		identity: config.Identity,
		logger:   config.Logger,
		commands: make(map[string]MessageHandler),
	}
}

// OnMessage registers a handler for chat lines no other handler claimed.
func (b *Bot) OnMessage(handler MessageHandler) {
	b.onMessage = handler
}

// OnMention registers a handler for messages that mention the bot.
func (b *Bot) OnMention(handler MessageHandler) {
	b.onMention = handler
}

// OnServerMessage registers a handler for operator messages.
func (b *Bot) OnServerMessage(handler MessageHandler) {
	b.onServer = handler
}

// Command registers a handler for "!name" lines.
func (b *Bot) Command(name string, handler MessageHandler) {
	b.commandsMu.Lock()
	defer b.commandsMu.Unlock()
	b.commands[name] = handler
}

// Commands returns the registered command names.
func (b *Bot) Commands() []string {
	b.commandsMu.RLock()
	defer b.commandsMu.RUnlock()
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	return names
}

// Run connects to the server, logs in and processes messages.
// Blocks until ctx is cancelled or the connection is lost.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Printf("Connecting to %s...", b.config.Server)
	conn, err := client.Dial(b.config.Server, b.config.Client)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()

	if err := conn.Login(b.identity); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.logger.Printf("Logged in as %s. Bot is running.", b.identity)

	for {
		select {
		case <-ctx.Done():
			b.logger.Printf("Stop requested")
			return nil
		case line, ok := <-conn.Incoming():
			if !ok {
				if err := conn.Err(); err != nil {
					return fmt.Errorf("connection lost: %w", err)
				}
				return errors.New("connection closed by server")
			}
			if line.Kind == client.KindError {
				return fmt.Errorf("%w: %s", ErrRejected, line.Content)
			}
			b.handleLine(line)
		}
	}
}

func (b *Bot) say(content string) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return client.ErrClosed
	}
	return conn.Send(content)
}

func (b *Bot) handleLine(line client.Line) {
	msg := &Message{
		Author:      line.Sender,
		Content:     line.Content,
		ReceivedAt:  time.Now(),
		botIdentity: b.identity,
	}

	switch line.Kind {
	case client.KindOperator:
		msg.FromServer = true
		if b.onServer != nil {
			b.onServer(&Context{bot: b, message: msg}, msg)
		}
		return
	case client.KindChat:
	default:
		return
	}

	// Skip our own messages
	if msg.Author == b.identity {
		return
	}

	ctx := &Context{bot: b, message: msg}

	if name, _, ok := msg.Command(); ok {
		b.commandsMu.RLock()
		handler := b.commands[name]
		b.commandsMu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
			return
		}
	}

	if msg.MentionsMe() && b.onMention != nil {
		b.onMention(ctx, msg)
		return
	}

	if b.onMessage != nil {
		b.onMessage(ctx, msg)
	}
}
