package chat

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
		ok   bool
	}{
		{"#stop", Command{Name: "stop"}, true},
		{"#setport 6000", Command{Name: "setport", Arg: "6000"}, true},
		{"#setport 6000 7000", Command{Name: "setport", Arg: "6000"}, true},
		{"#setport   6000  ", Command{Name: "setport", Arg: "6000"}, true},
		{"#", Command{}, true},
		{"hello #stop", Command{}, false},
		{" #stop", Command{}, false},
		{"", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseCommand(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestInterpreter(t *testing.T, opts ...Option) (*Interpreter, *App, *fakeEndpoint, *recordingConsole) {
	t.Helper()
	app, endpoint, console := newTestApp(t, opts...)
	return NewInterpreter(app), app, endpoint, console
}

func TestStartAndStop(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)

	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, StateListening, app.Lifecycle().State())
	assert.Equal(t, "Server listening for connections on port 5555", console.Last())

	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, "Server is already listening", console.Last())

	_, aliceConn := loggedInSession(t, app, endpoint, "alice")

	require.NoError(t, in.Execute("#stop"))
	assert.Equal(t, StateStopped, app.Lifecycle().State())
	assert.Equal(t, "Server has stopped listening for connections.", console.Last())
	assert.False(t, aliceConn.IsClosed(), "stop keeps connected sessions")
	assert.Equal(t, 1, endpoint.SessionCount())

	require.NoError(t, in.Execute("#stop"))
	assert.Equal(t, "Server is not listening", console.Last())
	assert.Equal(t, StateStopped, app.Lifecycle().State())

	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, StateListening, app.Lifecycle().State())
}

func TestStartBindFailureStaysStopped(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	bindErr := errors.New("address already in use")
	endpoint.listenErr = bindErr

	err := app.Start()
	assert.ErrorIs(t, err, bindErr)

	require.NoError(t, in.Execute("#start"))
	assert.True(t, strings.HasPrefix(console.Last(), "ERROR - Could not listen for clients!"), console.Last())
	assert.Equal(t, StateStopped, app.Lifecycle().State())

	endpoint.listenErr = nil
	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, StateListening, app.Lifecycle().State())
}

func TestCloseIsTerminal(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	require.NoError(t, app.Start())
	_, aliceConn := loggedInSession(t, app, endpoint, "alice")

	require.NoError(t, in.Execute("#close"))
	assert.Equal(t, StateClosed, app.Lifecycle().State())
	assert.Equal(t, "Server closed", console.Last())
	assert.True(t, aliceConn.IsClosed())
	assert.Equal(t, 0, endpoint.SessionCount())

	require.NoError(t, in.Execute("#close"))
	assert.Equal(t, "Server is already closed", console.Last())

	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, "Error: the server is closed and cannot listen again", console.Last())
	assert.Equal(t, StateClosed, app.Lifecycle().State())

	require.NoError(t, in.Execute("#stop"))
	assert.Equal(t, "Server is not listening", console.Last())
	assert.Equal(t, StateClosed, app.Lifecycle().State())
}

func TestCloseFromStopped(t *testing.T) {
	in, app, _, _ := newTestInterpreter(t)

	require.NoError(t, in.Execute("#close"))
	assert.Equal(t, StateClosed, app.Lifecycle().State())
}

func TestSetPort(t *testing.T) {
	t.Run("rejected while listening", func(t *testing.T) {
		in, app, endpoint, console := newTestInterpreter(t)
		require.NoError(t, app.Start())

		require.NoError(t, in.Execute("#setport 6000"))
		assert.Equal(t, "Error: close the server before setting the port", console.Last())
		assert.Equal(t, 5555, endpoint.Port())

		require.NoError(t, in.Execute("#getport"))
		assert.Equal(t, "Port Number: 5555", console.Last())
	})

	t.Run("rejected while stopped", func(t *testing.T) {
		in, _, endpoint, console := newTestInterpreter(t)

		require.NoError(t, in.Execute("#setport 6000"))
		assert.Equal(t, "Error: close the server before setting the port", console.Last())
		assert.Equal(t, 5555, endpoint.Port())
	})

	tests := []struct {
		line    string
		port    int
		message string
	}{
		{"#setport 6000", 6000, "Port number set to 6000"},
		{"#setport 6000 7000", 6000, "Port number set to 6000"},
		{"#setport 65535", 65535, "Port number set to 65535"},
		{"#setport", 5555, "Please include a port number: #setport <port>"},
		{"#setport abc", 5555, "Error: " + ErrInvalidPort.Error()},
		{"#setport 0", 5555, "Error: " + ErrInvalidPort.Error() + ": 0"},
		{"#setport 70000", 5555, "Error: " + ErrInvalidPort.Error() + ": 70000"},
		{"#setport -1", 5555, "Error: " + ErrInvalidPort.Error() + ": -1"},
	}
	for _, tt := range tests {
		t.Run("closed "+tt.line, func(t *testing.T) {
			in, _, endpoint, console := newTestInterpreter(t)
			require.NoError(t, in.Execute("#close"))

			require.NoError(t, in.Execute(tt.line))
			assert.Equal(t, tt.message, console.Last())
			assert.Equal(t, tt.port, endpoint.Port())

			require.NoError(t, in.Execute("#getport"))
			assert.Equal(t, "Port Number: "+strconv.Itoa(tt.port), console.Last())
		})
	}
}

func TestQuit(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	require.NoError(t, app.Start())
	_, aliceConn := loggedInSession(t, app, endpoint, "alice")

	err := in.Execute("#quit")
	assert.ErrorIs(t, err, ErrQuit)
	assert.Contains(t, console.Lines(), "Server terminated successfully")
	assert.Equal(t, StateClosed, app.Lifecycle().State())
	assert.True(t, aliceConn.IsClosed())
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	_, aliceConn := loggedInSession(t, app, endpoint, "alice")

	require.NoError(t, in.Execute("#frobnicate now"))
	require.NoError(t, in.Execute("#"))
	require.NoError(t, in.Execute("#Stop"))

	assert.Empty(t, console.Lines())
	assert.Empty(t, aliceConn.Lines())
	assert.Equal(t, StateStopped, app.Lifecycle().State())
}

func TestPlainLineIsOperatorMessage(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	_, aliceConn := loggedInSession(t, app, endpoint, "alice")

	require.NoError(t, in.Execute("hello everyone"))
	require.NoError(t, in.Execute("   "))

	assert.Equal(t, []string{"SERVER MSG> hello everyone"}, console.Lines())
	assert.Equal(t, []string{"SERVER MSG> hello everyone"}, aliceConn.Lines())
}

func TestStatusAndWho(t *testing.T) {
	in, app, endpoint, console := newTestInterpreter(t)
	require.NoError(t, app.Start())

	require.NoError(t, in.Execute("#who"))
	assert.Equal(t, "No participants", console.Last())

	loggedInSession(t, app, endpoint, "bob")
	loggedInSession(t, app, endpoint, "alice")
	endpoint.connect()

	require.NoError(t, in.Execute("#who"))
	assert.Equal(t, "Participants (2): alice, bob", console.Last())

	require.NoError(t, in.Execute("#status"))
	assert.True(t, strings.HasPrefix(console.Last(), "State: listening, port 5555, 3 connections, 2 participants, up "), console.Last())
}

func TestJournalRecordsCommandsAndTransitions(t *testing.T) {
	journal := &recordingJournal{}
	in, _, _, _ := newTestInterpreter(t, WithJournal(journal))

	require.NoError(t, in.Execute("#start"))
	require.NoError(t, in.Execute("#stop"))
	require.NoError(t, in.Execute("chatter is not journaled"))
	require.NoError(t, in.Execute("#close"))

	assert.Equal(t, []string{
		"command #start",
		"lifecycle stopped -> listening",
		"command #stop",
		"lifecycle listening -> stopped",
		"command #close",
		"lifecycle stopped -> closed",
	}, journal.Entries())
}

func TestJournalFailureDoesNotBlockCommands(t *testing.T) {
	journal := &recordingJournal{err: errors.New("disk full")}
	in, app, _, _ := newTestInterpreter(t, WithJournal(journal))

	require.NoError(t, in.Execute("#start"))
	assert.Equal(t, StateListening, app.Lifecycle().State())
}
