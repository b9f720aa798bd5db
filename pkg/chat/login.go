package chat

import (
	"log"
	"strings"

	"github.com/aeolun/echochat/pkg/server"
)

// LoginCommand is the reserved prefix of the login declaration
const LoginCommand = "#login"

// Rejection reasons, used as metric labels
const (
	rejectMalformed = "malformed"
	rejectDuplicate = "duplicate"
)

// ParseLogin extracts the identity from a "#login <name>" line. The line must
// consist of the prefix and exactly one whitespace-separated token.
func ParseLogin(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != LoginCommand {
		return "", false
	}
	return fields[1], true
}

// IsLoginAttempt reports whether line starts with the login prefix, well
// formed or not.
func IsLoginAttempt(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && fields[0] == LoginCommand
}

// login handles the first line of a session that has no identity yet
func (a *App) login(sess *server.Session, line string) {
	if _, ok := sess.Identity(); ok {
		a.reject(sess, "already logged in", rejectDuplicate)
		return
	}

	identity, ok := ParseLogin(line)
	if !ok {
		a.reject(sess, "the first message must be \""+LoginCommand+" <name>\"", rejectMalformed)
		return
	}

	if err := sess.SetIdentity(identity); err != nil {
		a.reject(sess, "already logged in", rejectDuplicate)
		return
	}

	count := a.participants.Add(1)
	a.metrics.RecordLogin()
	a.metrics.RecordParticipants(count)
	log.Printf("%s has logged on from %s", identity, sess.DisplayName())
}

// reject notifies the session and closes it. Failures are logged only: the
// connection is assumed to be failing already.
func (a *App) reject(sess *server.Session, reason, label string) {
	a.metrics.RecordLoginRejected(label)
	log.Printf("Rejecting session %d from %s: %s", sess.ID, sess.DisplayName(), reason)

	if err := sess.Send("ERROR - " + reason + ". Connection closed."); err != nil {
		errorLog.Printf("Session %d: failed to send rejection: %v", sess.ID, err)
	}
	if err := sess.Close(); err != nil {
		errorLog.Printf("Session %d: failed to close: %v", sess.ID, err)
	}
}
