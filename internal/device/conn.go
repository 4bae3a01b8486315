package device

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Dialer opens an authenticated connection to a device.
type Dialer interface {
	Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error)
}

// Conn is one authenticated SSH connection.
type Conn interface {
	// Exec runs cmd in a new session and returns its stdout and stderr.
	Exec(cmd string) (stdout, stderr string, err error)
	// Files opens an SFTP subsystem on the connection.
	Files() (Filesystem, error)
	Close() error
}

// Filesystem is the subset of SFTP used for uploads.
type Filesystem interface {
	MkdirAll(path string) error
	Create(path string) (io.WriteCloser, error)
	Chmod(path string, mode os.FileMode) error
	Close() error
}

// SSHDialer dials real devices.
type SSHDialer struct{}

// Dial connects over TCP and performs the SSH handshake.
func (SSHDialer) Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error) {
	d := net.Dialer{Timeout: config.Timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(nc, addr, config)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &sshConn{client: ssh.NewClient(c, chans, reqs)}, nil
}

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Exec(cmd string) (string, string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", "", err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	err = session.Run(cmd)
	return stdout.String(), stderr.String(), err
}

func (c *sshConn) Files() (Filesystem, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, err
	}
	return &sftpFS{client: client}, nil
}

func (c *sshConn) Close() error {
	return c.client.Close()
}

type sftpFS struct {
	client *sftp.Client
}

func (f *sftpFS) MkdirAll(path string) error {
	return f.client.MkdirAll(path)
}

func (f *sftpFS) Create(path string) (io.WriteCloser, error) {
	file, err := f.client.Create(path)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *sftpFS) Chmod(path string, mode os.FileMode) error {
	return f.client.Chmod(path, mode)
}

func (f *sftpFS) Close() error {
	return f.client.Close()
}
