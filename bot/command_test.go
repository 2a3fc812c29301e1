package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand("/help", "mybot")
	require.True(t, ok)
	assert.Equal(t, "help", cmd.Name)
	assert.False(t, cmd.Explicit)
	assert.Empty(t, cmd.Args)

	cmd, ok = ParseCommand("/cmd greet hello there", "mybot")
	require.True(t, ok)
	assert.Equal(t, "cmd", cmd.Name)
	assert.Equal(t, []string{"greet", "hello", "there"}, cmd.Args)
}

func TestParseCommandBotSuffix(t *testing.T) {
	// Case-insensitive match on our own name.
	cmd, ok := ParseCommand("/help@MyBot arg", "mybot")
	require.True(t, ok)
	assert.Equal(t, "help", cmd.Name)
	assert.True(t, cmd.Explicit)
	assert.Equal(t, []string{"arg"}, cmd.Args)

	// Another bot's command is dropped at parse time.
	_, ok = ParseCommand("/help@otherbot", "mybot")
	assert.False(t, ok)
}

func TestParseCommandRejectsNonCommands(t *testing.T) {
	for _, text := range []string{"", "   ", "hello /help", "/", "/@mybot"} {
		_, ok := ParseCommand(text, "mybot")
		assert.False(t, ok, "text %q", text)
	}
}

func TestParseCommandTruncatesArgs(t *testing.T) {
	parts := []string{"/x"}
	for i := 0; i < MaxCommandArgs+10; i++ {
		parts = append(parts, "a")
	}
	cmd, ok := ParseCommand(strings.Join(parts, " "), "mybot")
	require.True(t, ok)
	assert.Len(t, cmd.Args, MaxCommandArgs)
}

func TestParseCommandIdempotent(t *testing.T) {
	first, ok := ParseCommand("/abc one two", "mybot")
	require.True(t, ok)
	second, ok := ParseCommand("/"+first.Name+" "+strings.Join(first.Args, " "), "mybot")
	require.True(t, ok)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Args, second.Args)
}

func TestParseCallbackDataRoundTrip(t *testing.T) {
	cd, err := ParseCallbackData("schedule tok123 2 1700000000 mon extra")
	require.NoError(t, err)
	assert.Equal(t, "schedule", cd.Context)
	assert.Equal(t, "tok123", cd.Token)
	assert.Equal(t, 2, cd.Page)
	assert.Equal(t, int64(1700000000), cd.Timestamp)
	assert.Equal(t, "mon extra", cd.UserData)

	again, err := ParseCallbackData(cd.String())
	require.NoError(t, err)
	assert.Equal(t, cd, again)
}

func TestParseCallbackDataMalformed(t *testing.T) {
	for _, data := range []string{"", "one two three", "ctx tok notanumber 5", "ctx tok 1 notatime"} {
		_, err := ParseCallbackData(data)
		assert.Error(t, err, "data %q", data)
	}
}

func TestCommandRemainder(t *testing.T) {
	assert.Equal(t, "hello   there", commandRemainder("/cmd greet hello   there", 2))
	assert.Equal(t, "", commandRemainder("/cmd greet", 2))
	assert.Equal(t, "greet x", commandRemainder("/cmd greet x", 1))
}
