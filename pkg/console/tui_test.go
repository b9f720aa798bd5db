package console

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(t *testing.T, m model) model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return next.(model)
}

func TestModelShowsPendingAndNewNotices(t *testing.T) {
	m := sized(t, newModel(func(string) error { return nil }, []string{"Server listening for connections on port 5555"}))

	next, _ := m.Update(noticeMsg("Client 127.0.0.1 has connected to the server"))
	m = next.(model)

	view := m.View()
	assert.Contains(t, view, "Server listening for connections on port 5555")
	assert.Contains(t, view, "Client 127.0.0.1 has connected to the server")
	assert.Contains(t, view, "EchoChat server console")
}

func TestModelViewBeforeSize(t *testing.T) {
	m := newModel(nil, nil)
	assert.Equal(t, "Starting console...", m.View())
}

func TestModelEnterRunsHandler(t *testing.T) {
	var got []string
	m := sized(t, newModel(func(line string) error {
		got = append(got, line)
		return nil
	}, nil))

	m.input.SetValue("#getport")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.Equal(t, "", m.input.Value())

	msg := cmd()
	assert.Equal(t, handledMsg{}, msg)
	assert.Equal(t, []string{"#getport"}, got)

	next, cmd = m.Update(msg)
	m = next.(model)
	assert.Nil(t, cmd)
	assert.NoError(t, m.err)
	assert.Contains(t, m.View(), "> #getport")
}

func TestModelBlankLineIsIgnored(t *testing.T) {
	called := false
	m := sized(t, newModel(func(string) error { called = true; return nil }, nil))

	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, called)
}

func TestModelQuitsOnHandlerError(t *testing.T) {
	quit := errors.New("quit")
	m := sized(t, newModel(func(string) error { return quit }, nil))

	m.input.SetValue("#quit")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	next, cmd = m.Update(cmd())
	m = next.(model)
	assert.ErrorIs(t, m.err, quit)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelCtrlCQuitsWithoutError(t *testing.T) {
	m := sized(t, newModel(func(string) error { return nil }, nil))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.NoError(t, m.err)
}

func TestModelKeepsBoundedHistory(t *testing.T) {
	m := sized(t, newModel(nil, nil))
	for i := 0; i < maxHistoryLines+10; i++ {
		next, _ := m.Update(noticeMsg("line"))
		m = next.(model)
	}
	assert.Len(t, m.lines, maxHistoryLines)
}

func TestTUIBuffersNoticesBeforeRun(t *testing.T) {
	tui := NewTUI()
	tui.Display("early notice")
	_, err := tui.Write([]byte("log line\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"early notice", "log line"}, tui.pending)
	assert.Equal(t, "plain", styleNotice("plain"))
	assert.True(t, strings.Contains(styleNotice("ERROR - x"), "ERROR - x"))
}
