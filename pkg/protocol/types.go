// Package protocol defines the devkit-utils command protocol spoken over SSH
// with a SteamOS devkit.
package protocol

import "fmt"

// DevkitUtilsDir is where the devkit service installs its helper scripts.
const DevkitUtilsDir = "~/devkit-utils"

// PrepareUploadResult is the answer of steamos-prepare-upload.
type PrepareUploadResult struct {
	User      string `json:"user"`
	Directory string `json:"directory"`
}

// CreateShortcutParams is the --parms payload of steam-client-create-shortcut.
type CreateShortcutParams struct {
	GameID    string            `json:"gameid"`
	Directory string            `json:"directory"`
	Argv      []string          `json:"argv"`
	Settings  map[string]string `json:"settings"`
}

// CreateShortcutResult is the answer of steam-client-create-shortcut.
// The script signals the outcome through which key is present, so both
// fields stay nil when absent.
type CreateShortcutResult struct {
	Error   *string `json:"error,omitempty"`
	Success *string `json:"success,omitempty"`
}

// Failed reports whether the script returned an error key.
func (r CreateShortcutResult) Failed() bool {
	return r.Error != nil
}

// Message returns whichever of error/success text the script sent.
func (r CreateShortcutResult) Message() string {
	switch {
	case r.Error != nil:
		return *r.Error
	case r.Success != nil:
		return *r.Success
	default:
		return ""
	}
}

// ProtocolError reports output that could not be understood.
type ProtocolError struct {
	Command string
	Output  string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected output from %s: %v (output: %q)", e.Command, e.Err, truncate(e.Output, 200))
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
