package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserListMessage(t *testing.T) {
	assert.Equal(t, "Connected users:\n  alice\n  bob\n", UserListMessage([]string{"alice", "bob"}))
	assert.Equal(t, "Connected users:\n", UserListMessage(nil))
}

func TestWelcomeMessageListsCommands(t *testing.T) {
	msg := WelcomeMessage("alice")

	assert.Contains(t, msg, "Welcome, alice!")
	for _, cmd := range []string{"@username message", "/who", "/quit"} {
		assert.Contains(t, msg, cmd)
	}
}
