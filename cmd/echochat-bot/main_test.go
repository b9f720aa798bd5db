package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/echochat/pkg/botlib"
	"github.com/aeolun/echochat/pkg/chat"
	"github.com/aeolun/echochat/pkg/client"
	"github.com/aeolun/echochat/pkg/server"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type discardConsole struct{}

func (discardConsole) Display(string) {}

func TestHelpText(t *testing.T) {
	got := helpText([]string{"time", "ping", "echo"})
	assert.Equal(t, "commands: !echo !ping !time", got)
}

func TestBotReplies(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Port = 0
	srv := server.NewServer(cfg, nil)
	app := chat.NewApp(srv, discardConsole{})
	srv.Handle(app)
	require.NoError(t, app.Start())
	t.Cleanup(func() { _ = srv.Close() })
	addr := fmt.Sprintf("127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)

	bot := botlib.New(botlib.Config{
		Server:   addr,
		Identity: "echobot",
		Logger:   log.New(io.Discard, "", 0),
	})
	registerHandlers(bot, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bot.Run(ctx) }()
	require.Eventually(t, func() bool {
		return slices.Contains(app.Participants(), "echobot")
	}, 2*time.Second, 10*time.Millisecond)

	alice, err := client.Dial(addr, client.Options{Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = alice.Close() })
	require.NoError(t, alice.Login("alice"))

	tests := []struct {
		send string
		want string
	}{
		{"!ping", "echobot: @alice pong"},
		{"!echo hi there", "echobot: hi there"},
		{"!echo", "echobot: @alice usage: !echo <text>"},
		{"!help", "echobot: @alice commands: !echo !help !ping !time !uptime"},
		{"@echobot", "echobot: @alice Hi! Type !help to see what I can do."},
	}
	for _, tt := range tests {
		t.Run(tt.send, func(t *testing.T) {
			require.NoError(t, alice.Send(tt.send))
			deadline := time.After(2 * time.Second)
			for {
				select {
				case line, ok := <-alice.Incoming():
					require.True(t, ok)
					if strings.HasPrefix(line.Raw, "echobot: ") {
						assert.Equal(t, tt.want, line.Raw)
						return
					}
				case <-deadline:
					t.Fatalf("no reply to %q", tt.send)
				}
			}
		})
	}
}
