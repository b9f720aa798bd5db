package chat

import (
	"github.com/aeolun/echochat/pkg/server"
)

const (
	// Separator joins the sender identity and the payload of a chat line.
	// Clients parse "<identity>: <payload>"; changing it breaks them.
	Separator = ": "
	// OperatorPrefix tags lines typed on the server console
	OperatorPrefix = "SERVER MSG> "
)

// loggedIn selects the sessions that take part in chat
func loggedIn(sess *server.Session) bool {
	_, ok := sess.Identity()
	return ok && !sess.IsClosed()
}

// route tags a participant's line with its identity and fans it out to every
// participant, the sender included
func (a *App) route(identity, line string) int {
	return a.broadcast(identity + Separator + line)
}

// SendOperatorMessage displays an operator line locally and broadcasts it
func (a *App) SendOperatorMessage(line string) int {
	msg := OperatorPrefix + line
	a.console.Display(msg)
	return a.broadcast(msg)
}

func (a *App) broadcast(msg string) int {
	delivered := a.endpoint.SendToAll(msg, loggedIn)
	a.metrics.RecordBroadcast()
	debugLog.Printf("Broadcast to %d participants: %q", delivered, msg)
	return delivered
}
