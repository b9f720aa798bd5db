// Package console provides the operator consoles: a plain line console and a
// full-screen terminal console. Both read operator lines, pass them to a
// handler and display server notices.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/aeolun/echochat/pkg/chat"
)

// ErrClosed is returned by Run when the operator's input ends without a
// handler asking to stop (end of input, Ctrl+C)
var ErrClosed = errors.New("console closed")

// Handler processes one operator line. A non-nil error ends Run and is
// returned from it.
type Handler func(line string) error

// LineConsole reads operator lines from an io.Reader and prints notices to an
// io.Writer
type LineConsole struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex

	errorColor    *color.Color
	operatorColor *color.Color
}

// NewLineConsole creates a console reading from in and writing to out
func NewLineConsole(in io.Reader, out io.Writer) *LineConsole {
	return &LineConsole{
		in:            in,
		out:           out,
		errorColor:    color.New(color.FgRed, color.Bold),
		operatorColor: color.New(color.FgCyan),
	}
}

// Display prints one notice. Error notices are shown in red.
func (c *LineConsole) Display(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case isError(msg):
		c.errorColor.Fprintln(c.out, msg)
	case strings.HasPrefix(msg, chat.OperatorPrefix):
		c.operatorColor.Fprintln(c.out, msg)
	default:
		fmt.Fprintln(c.out, msg)
	}
}

// Write lets the console receive log output; each line becomes a notice
func (c *LineConsole) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		c.Display(line)
	}
	return len(p), nil
}

// Run feeds each input line to handle until handle returns an error or the
// input ends
func (c *LineConsole) Run(handle Handler) error {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := handle(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console input: %w", err)
	}
	return ErrClosed
}

func isError(msg string) bool {
	return strings.HasPrefix(msg, "ERROR") || strings.HasPrefix(msg, "Error")
}
