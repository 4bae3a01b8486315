package device

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
	"github.com/lobinuxsoft/devkit-deploy/pkg/protocol"
	"github.com/lobinuxsoft/devkit-deploy/pkg/transfer"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake.
const DefaultDialTimeout = 10 * time.Second

// Session runs commands and uploads against one device. Every call opens its
// own connection and closes it before returning.
type Session struct {
	device    discovery.Device
	keyPath   string
	signer    ssh.Signer
	dialer    Dialer
	timeout   time.Duration
	chunkSize int
	log       zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithKeyPath overrides the private key location.
func WithKeyPath(p string) Option {
	return func(s *Session) { s.keyPath = p }
}

// WithSigner uses an already loaded key instead of reading one from disk.
func WithSigner(signer ssh.Signer) Option {
	return func(s *Session) { s.signer = signer }
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithDialTimeout sets the connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithChunkSize sets the upload chunk size.
func WithChunkSize(n int) Option {
	return func(s *Session) { s.chunkSize = n }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession prepares a session for dev. The private key must exist; a
// missing key yields an error wrapping ErrMissingCredential.
func NewSession(dev discovery.Device, opts ...Option) (*Session, error) {
	s := &Session{
		device:    dev,
		dialer:    SSHDialer{},
		timeout:   DefaultDialTimeout,
		chunkSize: transfer.DefaultChunkSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.signer == nil {
		if s.keyPath == "" {
			p, err := DefaultKeyPath()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMissingCredential, err)
			}
			s.keyPath = p
		}
		signer, err := LoadSigner(s.keyPath)
		if err != nil {
			return nil, err
		}
		s.signer = signer
	}

	s.log = s.log.With().Str("device", dev.ID()).Logger()
	return s, nil
}

// Device returns the target device.
func (s *Session) Device() discovery.Device {
	return s.device
}

func (s *Session) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            s.device.Login,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(s.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}
}

func (s *Session) dial(ctx context.Context) (Conn, error) {
	return s.dialer.Dial(ctx, s.device.SSHAddress(), s.clientConfig())
}

type execResult struct {
	stdout string
	stderr string
	err    error
}

// RunCommand executes cmd on the device and returns its stdout.
func (s *Session) RunCommand(ctx context.Context, cmd string) (string, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return "", &RemoteExecError{Command: cmd, ExitStatus: -1, Err: fmt.Errorf("SSH connection failed: %w", err)}
	}
	defer conn.Close()

	s.log.Debug().Str("command", cmd).Msg("Running remote command")

	done := make(chan execResult, 1)
	go func() {
		stdout, stderr, err := conn.Exec(cmd)
		done <- execResult{stdout: stdout, stderr: stderr, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-ctx.Done():
		conn.Close()
		return "", &RemoteExecError{Command: cmd, ExitStatus: -1, Err: ctx.Err()}
	}

	if res.err != nil {
		return res.stdout, &RemoteExecError{
			Command:    cmd,
			ExitStatus: exitStatusOf(res.err),
			Stderr:     res.stderr,
			Err:        res.err,
		}
	}
	return res.stdout, nil
}

// UploadDirectory mirrors localDir into remoteDir, reporting progress at every
// chunk boundary, then marks the uploaded tree executable.
func (s *Session) UploadDirectory(ctx context.Context, localDir, remoteDir string, onProgress transfer.ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(string, int64, int64) {}
	}
	fail := func(file string, err error) error {
		return &RemoteTransferError{Local: localDir, Remote: remoteDir, File: file, Err: err}
	}

	files, dirs, total, err := transfer.CollectFiles(localDir)
	if err != nil {
		return fail("", err)
	}

	if err := s.upload(ctx, localDir, remoteDir, files, dirs, onProgress, fail); err != nil {
		return err
	}

	s.log.Info().
		Int("files", len(files)).
		Int64("bytes", total).
		Str("remote", remoteDir).
		Msg("Upload finished")

	if _, err := s.RunCommand(ctx, protocol.ChmodExecutableCommand(remoteDir)); err != nil {
		return fail("", err)
	}
	return nil
}

func (s *Session) upload(
	ctx context.Context,
	localDir, remoteDir string,
	files []transfer.FileEntry,
	dirs []string,
	onProgress transfer.ProgressFunc,
	fail func(string, error) error,
) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fail("", fmt.Errorf("SSH connection failed: %w", err))
	}
	defer conn.Close()

	fsys, err := conn.Files()
	if err != nil {
		return fail("", fmt.Errorf("SFTP connection failed: %w", err))
	}
	defer fsys.Close()

	if err := fsys.MkdirAll(remoteDir); err != nil {
		return fail("", fmt.Errorf("failed to create remote directory: %w", err))
	}
	for _, dir := range dirs {
		if err := fsys.MkdirAll(path.Join(remoteDir, dir)); err != nil {
			return fail(dir, fmt.Errorf("failed to create remote directory: %w", err))
		}
	}

	tracker := transfer.NewTracker()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fail(f.RelativePath, err)
		}
		if err := s.uploadFile(fsys, localDir, remoteDir, f, tracker, onProgress); err != nil {
			return fail(f.RelativePath, err)
		}
	}

	if len(files) > 0 && !tracker.Complete() {
		return fail(tracker.LastFile(), errIncompleteUpload)
	}
	return nil
}

func (s *Session) uploadFile(
	fsys Filesystem,
	localDir, remoteDir string,
	f transfer.FileEntry,
	tracker *transfer.Tracker,
	onProgress transfer.ProgressFunc,
) error {
	reader, err := transfer.NewChunkReader(filepath.Join(localDir, filepath.FromSlash(f.RelativePath)), s.chunkSize)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer reader.Close()

	remotePath := path.Join(remoteDir, f.RelativePath)
	w, err := fsys.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	size := reader.FileSize()
	var trackErr error
	report := func(sent int64) {
		if trackErr != nil {
			return
		}
		if _, trackErr = tracker.Update(f.RelativePath, sent, size); trackErr == nil {
			onProgress(f.RelativePath, sent, size)
		}
	}

	if size == 0 {
		report(0)
	} else if err := reader.CopyChunks(w, report); err != nil {
		w.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close remote file: %w", err)
	}
	if trackErr != nil {
		return trackErr
	}

	if err := fsys.Chmod(remotePath, f.Mode.Perm()); err != nil {
		s.log.Warn().Err(err).Str("file", remotePath).Msg("Failed to set permissions")
	}
	return nil
}
