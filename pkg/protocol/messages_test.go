package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareUploadCommand(t *testing.T) {
	assert.Equal(t,
		"python3 ~/devkit-utils/steamos-prepare-upload --gameid MyGame",
		PrepareUploadCommand("MyGame"))
}

func TestDeleteTitleCommand(t *testing.T) {
	assert.Equal(t,
		"python3 ~/devkit-utils/steamos-delete --delete-title MyGame",
		DeleteTitleCommand("MyGame"))
}

func TestChmodExecutableCommand(t *testing.T) {
	assert.Equal(t, "chmod +x -R /home/deck/devkit-game/MyGame", ChmodExecutableCommand("/home/deck/devkit-game/MyGame"))
	assert.Equal(t, "chmod +x -R '/home/deck/my game'", ChmodExecutableCommand("/home/deck/my game"))
}

func TestCreateShortcutCommand(t *testing.T) {
	cmd, err := CreateShortcutCommand(CreateShortcutParams{
		GameID:    "MyGame",
		Directory: "/home/deck/devkit-game/MyGame",
		Argv:      []string{"game.x86_64", "--fullscreen 'yes'"},
		Settings:  map[string]string{"steam_play": "0"},
	})
	require.NoError(t, err)

	prefix := "python3 ~/devkit-utils/steam-client-create-shortcut --parms '"
	require.True(t, strings.HasPrefix(cmd, prefix), cmd)

	quoted := strings.TrimPrefix(cmd, "python3 ~/devkit-utils/steam-client-create-shortcut --parms ")
	payload := unquote(t, quoted)

	var params CreateShortcutParams
	require.NoError(t, json.Unmarshal([]byte(payload), &params))
	assert.Equal(t, "MyGame", params.GameID)
	assert.Equal(t, "/home/deck/devkit-game/MyGame", params.Directory)
	assert.Equal(t, []string{"game.x86_64", "--fullscreen 'yes'"}, params.Argv)
	assert.Equal(t, map[string]string{"steam_play": "0"}, params.Settings)
}

func TestCreateShortcutCommand_NilCollections(t *testing.T) {
	cmd, err := CreateShortcutCommand(CreateShortcutParams{GameID: "g", Directory: "/d"})
	require.NoError(t, err)
	assert.Contains(t, cmd, `"argv":[]`)
	assert.Contains(t, cmd, `"settings":{}`)
}

// unquote reverses ShellQuote for a single quoted word.
func unquote(t *testing.T, s string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'"), s)
	return strings.ReplaceAll(s[1:len(s)-1], `'\''`, "'")
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShellQuote(tt.in))
	}
}

func TestShellArg(t *testing.T) {
	assert.Equal(t, "MyGame_1700000000", ShellArg("MyGame_1700000000"))
	assert.Equal(t, "'a b'", ShellArg("a b"))
	assert.Equal(t, "'$(rm -rf /)'", ShellArg("$(rm -rf /)"))
	assert.Equal(t, "''", ShellArg(""))
}

func TestParsePrepareUpload(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    PrepareUploadResult
		wantErr bool
	}{
		{
			name:   "plain json",
			output: `{"user": "deck", "directory": "/home/deck/devkit-game/MyGame"}`,
			want:   PrepareUploadResult{User: "deck", Directory: "/home/deck/devkit-game/MyGame"},
		},
		{
			name:   "warnings before json",
			output: "WARNING: something\n{\"user\": \"deck\", \"directory\": \"/d\"}\n",
			want:   PrepareUploadResult{User: "deck", Directory: "/d"},
		},
		{name: "empty", output: "  \n", wantErr: true},
		{name: "garbage", output: "Traceback (most recent call last):", wantErr: true},
		{name: "missing directory", output: `{"user": "deck"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrepareUpload(tt.output)
			if tt.wantErr {
				var perr *ProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, ScriptPrepareUpload, perr.Command)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCreateShortcut(t *testing.T) {
	t.Run("error key", func(t *testing.T) {
		got, err := ParseCreateShortcut(`{"error": "exists"}`)
		require.NoError(t, err)
		assert.True(t, got.Failed())
		assert.Equal(t, "exists", got.Message())
	})

	t.Run("success key", func(t *testing.T) {
		got, err := ParseCreateShortcut(`{"success": "created"}`)
		require.NoError(t, err)
		assert.False(t, got.Failed())
		assert.Equal(t, "created", got.Message())
	})

	t.Run("empty object", func(t *testing.T) {
		got, err := ParseCreateShortcut(`{}`)
		require.NoError(t, err)
		assert.False(t, got.Failed())
		assert.Equal(t, "", got.Message())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseCreateShortcut("")
		require.Error(t, err)
		assert.ErrorIs(t, err, errEmptyOutput)
	})
}

func TestProtocolError_TruncatesOutput(t *testing.T) {
	err := &ProtocolError{Command: "x", Output: strings.Repeat("a", 500), Err: errNoJSONObject}
	assert.Less(t, len(err.Error()), 300)
	assert.ErrorIs(t, err, errNoJSONObject)
}
