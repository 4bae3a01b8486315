package protocol

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Script names under DevkitUtilsDir.
const (
	ScriptPrepareUpload  = "steamos-prepare-upload"
	ScriptCreateShortcut = "steam-client-create-shortcut"
	ScriptDelete         = "steamos-delete"
)

var (
	errEmptyOutput    = errors.New("empty output")
	errNoJSONObject   = errors.New("no JSON object found")
	errEmptyDirectory = errors.New("directory is empty")
)

var safeShellArg = regexp.MustCompile(`^[A-Za-z0-9_./~:@%+=,-]+$`)

// PrepareUploadCommand asks the devkit to allocate an upload directory for gameID.
func PrepareUploadCommand(gameID string) string {
	return script(ScriptPrepareUpload) + " --gameid " + ShellArg(gameID)
}

// DeleteTitleCommand removes a previously uploaded title.
func DeleteTitleCommand(gameID string) string {
	return script(ScriptDelete) + " --delete-title " + ShellArg(gameID)
}

// CreateShortcutCommand registers the uploaded build with the Steam client.
func CreateShortcutCommand(params CreateShortcutParams) (string, error) {
	if params.Settings == nil {
		params.Settings = map[string]string{}
	}
	if params.Argv == nil {
		params.Argv = []string{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return script(ScriptCreateShortcut) + " --parms " + ShellQuote(string(payload)), nil
}

// ChmodExecutableCommand marks everything under dir executable.
func ChmodExecutableCommand(dir string) string {
	return "chmod +x -R " + ShellArg(dir)
}

// ParsePrepareUpload decodes the steamos-prepare-upload answer.
func ParsePrepareUpload(output string) (PrepareUploadResult, error) {
	var result PrepareUploadResult
	if err := decodeJSONObject(output, &result); err != nil {
		return result, &ProtocolError{Command: ScriptPrepareUpload, Output: output, Err: err}
	}
	if strings.TrimSpace(result.Directory) == "" {
		return result, &ProtocolError{Command: ScriptPrepareUpload, Output: output, Err: errEmptyDirectory}
	}
	return result, nil
}

// ParseCreateShortcut decodes the steam-client-create-shortcut answer.
func ParseCreateShortcut(output string) (CreateShortcutResult, error) {
	var result CreateShortcutResult
	if err := decodeJSONObject(output, &result); err != nil {
		return result, &ProtocolError{Command: ScriptCreateShortcut, Output: output, Err: err}
	}
	return result, nil
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellArg quotes s only when it contains shell metacharacters.
func ShellArg(s string) string {
	if safeShellArg.MatchString(s) {
		return s
	}
	return ShellQuote(s)
}

func script(name string) string {
	return "python3 " + DevkitUtilsDir + "/" + name
}

// decodeJSONObject accepts the whole output as JSON, or else the last line that
// holds a JSON object; the scripts sometimes print warnings before the result.
func decodeJSONObject(output string, v any) error {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return errEmptyOutput
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		return json.Unmarshal([]byte(line), v)
	}
	return errNoJSONObject
}
