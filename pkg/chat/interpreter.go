package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aeolun/echochat/pkg/server"
)

// CommandSentinel marks a console line as a command
const CommandSentinel = "#"

// Command is a parsed console command
type Command struct {
	Name string
	Arg  string
}

// ParseCommand splits a console line into keyword and first argument.
// Arguments after the first are ignored. ok is false for lines that do not
// start with the sentinel.
func ParseCommand(line string) (cmd Command, ok bool) {
	if !strings.HasPrefix(line, CommandSentinel) {
		return Command{}, false
	}
	fields := strings.Fields(line)
	cmd.Name = strings.TrimPrefix(fields[0], CommandSentinel)
	if len(fields) > 1 {
		cmd.Arg = fields[1]
	}
	return cmd, true
}

type commandFunc func(in *Interpreter, arg string) error

var commands = map[string]commandFunc{
	"quit":    (*Interpreter).quit,
	"stop":    (*Interpreter).stop,
	"close":   (*Interpreter).close,
	"setport": (*Interpreter).setPort,
	"start":   (*Interpreter).start,
	"getport": (*Interpreter).getPort,
	"status":  (*Interpreter).status,
	"who":     (*Interpreter).who,
}

// Interpreter executes operator console lines. Commands are serialised so
// the console and any other command source never interleave.
type Interpreter struct {
	app *App
	mu  sync.Mutex
}

// NewInterpreter creates an interpreter driving app
func NewInterpreter(app *App) *Interpreter {
	return &Interpreter{app: app}
}

// Execute runs one console line. Lines without the sentinel are broadcast as
// operator messages; unknown commands are ignored. The only error returned is
// ErrQuit.
func (in *Interpreter) Execute(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	cmd, ok := ParseCommand(line)
	if !ok {
		in.app.SendOperatorMessage(line)
		return nil
	}

	fn, ok := commands[cmd.Name]
	if !ok {
		debugLog.Printf("Ignoring unknown command %q", line)
		return nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.app.metrics.RecordCommand(cmd.Name)
	in.app.record("command", strings.TrimSpace(line))
	return fn(in, cmd.Arg)
}

func (in *Interpreter) display(format string, args ...any) {
	in.app.console.Display(fmt.Sprintf(format, args...))
}

func (in *Interpreter) quit(string) error {
	in.display("Server terminated successfully")
	if err := in.app.Close(); err != nil {
		errorLog.Printf("Failed to close server: %v", err)
	}
	return ErrQuit
}

func (in *Interpreter) stop(string) error {
	err := in.app.Stop()
	switch {
	case errors.Is(err, server.ErrNotListening):
		in.display("Server is not listening")
	case err != nil:
		in.display("ERROR - Failed to stop listening: %v", err)
	}
	return nil
}

func (in *Interpreter) close(string) error {
	if in.app.lifecycle.State() == StateClosed {
		in.display("Server is already closed")
		return nil
	}
	if err := in.app.Close(); err != nil {
		in.display("ERROR - Failed to close server: %v", err)
	}
	return nil
}

func (in *Interpreter) setPort(arg string) error {
	if in.app.lifecycle.State() != StateClosed {
		in.display("Error: close the server before setting the port")
		return nil
	}
	if arg == "" {
		in.display("Please include a port number: #setport <port>")
		return nil
	}
	port, err := strconv.Atoi(arg)
	if err != nil {
		in.display("Error: %v", ErrInvalidPort)
		return nil
	}
	if err := in.app.SetPort(port); err != nil {
		in.display("Error: %v", err)
		return nil
	}
	in.display("Port number set to %d", port)
	return nil
}

func (in *Interpreter) start(string) error {
	err := in.app.Start()
	switch {
	case errors.Is(err, server.ErrAlreadyListening):
		in.display("Server is already listening")
	case errors.Is(err, server.ErrServerClosed):
		in.display("Error: the server is closed and cannot listen again")
	case err != nil:
		in.display("ERROR - Could not listen for clients! (%v)", err)
	}
	return nil
}

func (in *Interpreter) getPort(string) error {
	in.display("Port Number: %d", in.app.endpoint.Port())
	return nil
}

func (in *Interpreter) status(string) error {
	st := in.app.Status()
	in.display("State: %s, port %d, %d connections, %d participants, up %s",
		st.State, st.Port, st.Sessions, st.Participants, st.Uptime)
	return nil
}

func (in *Interpreter) who(string) error {
	names := in.app.Participants()
	if len(names) == 0 {
		in.display("No participants")
		return nil
	}
	in.display("Participants (%d): %s", len(names), strings.Join(names, ", "))
	return nil
}
