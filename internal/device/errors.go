// Package device talks to a paired devkit over SSH and SFTP.
package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredential is returned when the devkit private key does not exist.
var ErrMissingCredential = errors.New("devkit_rsa key is missing. Have you connected to your device via the official devkit UI yet?")

var errIncompleteUpload = errors.New("last file did not report completion")

// RemoteExecError reports a remote command that could not run or exited non-zero.
// ExitStatus is -1 when the command never produced an exit status.
type RemoteExecError struct {
	Command    string
	ExitStatus int
	Stderr     string
	Err        error
}

func (e *RemoteExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "remote command %q", e.Command)
	if e.ExitStatus >= 0 {
		fmt.Fprintf(&b, " exited with status %d", e.ExitStatus)
	} else {
		b.WriteString(" failed")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, " (stderr: %s)", stderr)
	}
	return b.String()
}

func (e *RemoteExecError) Unwrap() error {
	return e.Err
}

// RemoteTransferError reports a failed directory upload.
type RemoteTransferError struct {
	Local  string
	Remote string
	File   string
	Err    error
}

func (e *RemoteTransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("upload %s to %s: %s: %v", e.Local, e.Remote, e.File, e.Err)
	}
	return fmt.Sprintf("upload %s to %s: %v", e.Local, e.Remote, e.Err)
}

func (e *RemoteTransferError) Unwrap() error {
	return e.Err
}

// exitStatuser is satisfied by *ssh.ExitError.
type exitStatuser interface {
	ExitStatus() int
}

func exitStatusOf(err error) int {
	var es exitStatuser
	if errors.As(err, &es) {
		return es.ExitStatus()
	}
	return -1
}
