package chat

import "strings"

// CommandKind classifies one received line.
type CommandKind int

const (
	// CommandEmpty is a line that trims to nothing; it is ignored.
	CommandEmpty CommandKind = iota
	// CommandSetUsername is the first line of a connection.
	CommandSetUsername
	// CommandListUsers is "/who".
	CommandListUsers
	// CommandQuit is "/quit".
	CommandQuit
	// CommandPrivate is "@target body".
	CommandPrivate
	// CommandInvalidPrivate is an "@" line without a target or body.
	CommandInvalidPrivate
	// CommandBroadcast is any other non-empty line.
	CommandBroadcast
)

func (k CommandKind) String() string {
	switch k {
	case CommandEmpty:
		return "empty"
	case CommandSetUsername:
		return "set-username"
	case CommandListUsers:
		return "list-users"
	case CommandQuit:
		return "quit"
	case CommandPrivate:
		return "private"
	case CommandInvalidPrivate:
		return "invalid-private"
	case CommandBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Command is the parsed form of a line. Name holds the username for
// CommandSetUsername and the target for CommandPrivate; Body holds the
// message text.
type Command struct {
	Kind CommandKind
	Name string
	Body string
}

// ParseUsername interprets the first line of a connection. The generic
// command grammar does not apply: "/who" is a (valid) name here.
func ParseUsername(line string) Command {
	name := strings.TrimSpace(line)
	if name == "" {
		return Command{Kind: CommandEmpty}
	}
	return Command{Kind: CommandSetUsername, Name: name}
}

// ParseCommand classifies a line received from a named session.
func ParseCommand(line string) Command {
	text := strings.TrimSpace(line)

	switch {
	case text == "":
		return Command{Kind: CommandEmpty}
	case text == "/who":
		return Command{Kind: CommandListUsers}
	case text == "/quit":
		return Command{Kind: CommandQuit}
	case strings.HasPrefix(text, "@"):
		return parsePrivate(text)
	default:
		return Command{Kind: CommandBroadcast, Body: text}
	}
}

func parsePrivate(text string) Command {
	target, body, found := strings.Cut(text[1:], " ")
	if !found || target == "" || strings.TrimSpace(body) == "" {
		return Command{Kind: CommandInvalidPrivate}
	}
	return Command{Kind: CommandPrivate, Name: target, Body: body}
}
