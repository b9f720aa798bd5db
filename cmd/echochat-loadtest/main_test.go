package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aeolun/echochat/pkg/chat"
	"github.com/aeolun/echochat/pkg/server"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type discardConsole struct{}

func (discardConsole) Display(string) {}

var usernamePattern = regexp.MustCompile(`^[a-z]{3,12}[0-9]+$`)

func TestGenerateUsername(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.IntRange(0, 1_000_000).Draw(t, "id")
		name := generateUsername(id)
		if len(name) > 20 {
			t.Fatalf("username %q longer than 20", name)
		}
		if !strings.HasSuffix(name, fmt.Sprint(id)) {
			t.Fatalf("username %q does not end with id %d", name, id)
		}
		if !usernamePattern.MatchString(name) {
			t.Fatalf("username %q is not a single lowercase word", name)
		}
	})
}

func TestRandomMessage(t *testing.T) {
	for i := 0; i < 50; i++ {
		words := strings.Fields(randomMessage())
		assert.GreaterOrEqual(t, len(words), 5)
		assert.LessOrEqual(t, len(words), 20)
	}
}

func TestStatsSnapshot(t *testing.T) {
	stats := &Stats{}
	stats.recordSuccess(1000)
	stats.recordSuccess(3000)
	stats.recordTimeout()
	stats.recordSendFailure()
	stats.connectionErrors.Add(1)

	posted, failed, connErrors, avgUs := stats.snapshot()
	assert.Equal(t, int64(2), posted)
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, int64(1), connErrors)
	assert.InDelta(t, 2000.0, avgUs, 0.001)
}

func TestRunLoadTest(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Port = 0
	srv := server.NewServer(cfg, nil)
	app := chat.NewApp(srv, discardConsole{})
	srv.Handle(app)
	require.NoError(t, app.Start())
	t.Cleanup(func() { _ = srv.Close() })

	stats := runLoadTest(loadConfig{
		server:   fmt.Sprintf("127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port),
		clients:  3,
		duration: 400 * time.Millisecond,
		minDelay: 20 * time.Millisecond,
		maxDelay: 40 * time.Millisecond,
	}, make(chan struct{}))

	assert.Equal(t, int64(3), stats.successfulClients.Load())
	assert.Zero(t, stats.connectionErrors.Load())
	assert.Positive(t, stats.messagesPosted.Load())
	assert.Positive(t, stats.linesReceived.Load())
}

func TestRunLoadTestUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	stats := runLoadTest(loadConfig{
		server:   addr,
		clients:  2,
		duration: 40 * time.Millisecond,
	}, make(chan struct{}))

	assert.Zero(t, stats.successfulClients.Load())
	assert.Equal(t, int64(2), stats.connectionErrors.Load())
	assert.Equal(t, int64(2), stats.dialFailures.Load())
}
