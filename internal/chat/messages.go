package chat

import (
	"fmt"
	"strings"
)

// Fixed protocol lines sent by the server.
const (
	PromptUsername   = "Enter your username: "
	MsgServerFull    = "Server full. Try again later.\n"
	MsgInvalidName   = "Invalid username. Disconnecting.\n"
	MsgNameTaken     = "Username already taken. Disconnecting.\n"
	MsgPrivateUsage  = "Usage: @username message\n"
	MsgShuttingDown  = "Server shutting down.\n"
	userListHeader   = "Connected users:\n"
	welcomeTemplate  = "\nWelcome, %s!\nCommands:\n  @username message  - Private message\n  /who               - List users\n  /quit              - Disconnect\n\n"
	joinTemplate     = "*** %s joined the chat ***\n"
	leaveTemplate    = "*** %s left the chat ***\n"
	broadcastFormat  = "[%s] %s\n"
	pmFromFormat     = "[PM from %s] %s\n"
	pmToFormat       = "[PM to %s] %s\n"
	notFoundTemplate = "User '%s' not found.\n"
)

// WelcomeMessage is the help block sent after a successful name negotiation.
func WelcomeMessage(name string) string {
	return fmt.Sprintf(welcomeTemplate, name)
}

// JoinMessage announces a newly named session.
func JoinMessage(name string) string {
	return fmt.Sprintf(joinTemplate, name)
}

// LeaveMessage announces a departed session.
func LeaveMessage(name string) string {
	return fmt.Sprintf(leaveTemplate, name)
}

// BroadcastMessage formats a public message.
func BroadcastMessage(from, body string) string {
	return fmt.Sprintf(broadcastFormat, from, body)
}

// PrivateFromMessage is what the target of a private message receives.
func PrivateFromMessage(from, body string) string {
	return fmt.Sprintf(pmFromFormat, from, body)
}

// PrivateToMessage is the confirmation the sender receives.
func PrivateToMessage(to, body string) string {
	return fmt.Sprintf(pmToFormat, to, body)
}

// NotFoundMessage reports an unknown private-message target.
func NotFoundMessage(target string) string {
	return fmt.Sprintf(notFoundTemplate, target)
}

// UserListMessage renders the reply to "/who".
func UserListMessage(names []string) string {
	var b strings.Builder
	b.WriteString(userListHeader)
	for _, name := range names {
		b.WriteString("  ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return b.String()
}
