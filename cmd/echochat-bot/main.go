// Command echochat-bot is an echochat bot that answers simple "!" commands
// and replies when mentioned.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aeolun/echochat/pkg/botlib"
	"github.com/aeolun/echochat/pkg/client"
)

func main() {
	server := flag.String("server", "localhost:5555", "Server address (host:port, tcp://, ssh:// or ws:// URL)")
	identity := flag.String("identity", "echobot", "Identity the bot logs in with")
	insecure := flag.Bool("insecure", false, "Skip SSH host key verification")
	knownHosts := flag.String("known-hosts", "", "known_hosts file for SSH host key verification")
	flag.Parse()

	bot := botlib.New(botlib.Config{
		Server:   *server,
		Identity: *identity,
		Client: client.Options{
			InsecureIgnoreHostKey: *insecure,
			KnownHostsPath:        *knownHosts,
		},
	})
	registerHandlers(bot, time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting bot...")
	log.Printf("  Server: %s", *server)
	log.Printf("  Identity: %s", *identity)

	if err := bot.Run(ctx); err != nil {
		if errors.Is(err, botlib.ErrRejected) {
			log.Fatalf("Login rejected: %v", err)
		}
		log.Fatalf("Bot error: %v", err)
	}
}

// registerHandlers wires the bot's commands and mention reply
func registerHandlers(bot *botlib.Bot, started time.Time) {
	bot.Command("ping", func(ctx *botlib.Context, msg *botlib.Message) {
		reply(ctx, "pong")
	})

	bot.Command("time", func(ctx *botlib.Context, msg *botlib.Message) {
		reply(ctx, time.Now().Format(time.RFC1123))
	})

	bot.Command("echo", func(ctx *botlib.Context, msg *botlib.Message) {
		_, args, _ := msg.Command()
		if args == "" {
			reply(ctx, "usage: !echo <text>")
			return
		}
		say(ctx, args)
	})

	bot.Command("uptime", func(ctx *botlib.Context, msg *botlib.Message) {
		reply(ctx, "up "+time.Since(started).Round(time.Second).String())
	})

	bot.Command("help", func(ctx *botlib.Context, msg *botlib.Message) {
		reply(ctx, helpText(bot.Commands()))
	})

	bot.OnMention(func(ctx *botlib.Context, msg *botlib.Message) {
		ctx.Log("Mentioned by %s: %s", msg.Author, msg.Content)

		query := msg.MentionedContent()
		if query == "" {
			reply(ctx, "Hi! Type !help to see what I can do.")
			return
		}
		reply(ctx, fmt.Sprintf("you said %q. Type !help for commands.", query))
	})

	bot.OnServerMessage(func(ctx *botlib.Context, msg *botlib.Message) {
		ctx.Log("Server message: %s", msg.Content)
	})
}

func helpText(commands []string) string {
	sort.Strings(commands)
	for i, name := range commands {
		commands[i] = botlib.CommandPrefix + name
	}
	return "commands: " + strings.Join(commands, " ")
}

func reply(ctx *botlib.Context, content string) {
	if err := ctx.Reply(content); err != nil {
		ctx.Log("Failed to reply: %v", err)
	}
}

func say(ctx *botlib.Context, content string) {
	if err := ctx.Say(content); err != nil {
		ctx.Log("Failed to send: %v", err)
	}
}
