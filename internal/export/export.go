// Package export runs the engine's headless export as a child process.
package export

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultPreset is the export preset name used for Steam Deck builds.
const DefaultPreset = "Steamdeck"

const maxLineSize = 1024 * 1024

var execCommand = exec.CommandContext

// ErrNoTool is returned when the request does not name an export executable.
var ErrNoTool = errors.New("export tool path is empty")

// Request describes one export invocation.
type Request struct {
	Tool        string
	ProjectPath string
	OutputPath  string
	Preset      string
	Release     bool
}

// Args returns the command line arguments passed to the export tool.
func (r Request) Args() []string {
	mode := "--export-debug"
	if r.Release {
		mode = "--export-release"
	}
	preset := r.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	return []string{"--headless", "--path", r.ProjectPath, mode, preset, r.OutputPath}
}

// ExitResult describes how the export process ended.
type ExitResult struct {
	Code   int
	Stderr string
	Err    error
}

// Failed reports whether the export should be treated as unsuccessful.
func (r ExitResult) Failed() bool {
	return r.Code != 0 || r.Err != nil
}

func (r ExitResult) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("export failed: %v", r.Err)
	case r.Code != 0:
		return fmt.Sprintf("export exited with code %d", r.Code)
	default:
		return "export finished"
	}
}

// Invoker launches export processes.
type Invoker struct {
	log zerolog.Logger
}

// NewInvoker creates an invoker logging to log.
func NewInvoker(log zerolog.Logger) *Invoker {
	return &Invoker{log: log}
}

// ExportProject starts the export and returns once the process is running.
// onOutputLine receives each stdout line; onExited is called exactly once after
// the process ends and all output was delivered. If the process cannot be
// started an error is returned and onExited is never called.
func (i *Invoker) ExportProject(ctx context.Context, req Request, onOutputLine func(string), onExited func(ExitResult)) error {
	if req.Tool == "" {
		return ErrNoTool
	}
	if onOutputLine == nil {
		onOutputLine = func(string) {}
	}
	if onExited == nil {
		onExited = func(ExitResult) {}
	}

	cmd := execCommand(ctx, req.Tool, req.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	i.log.Info().Str("tool", req.Tool).Strs("args", req.Args()).Msg("Starting export")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start export tool: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			onOutputLine(strings.TrimRight(scanner.Text(), "\r"))
		}
		scanErr := scanner.Err()
		// The child blocks on a full pipe until the rest of its output is read.
		if _, err := io.Copy(io.Discard, stdout); err != nil && scanErr == nil {
			scanErr = err
		}

		waitErr := cmd.Wait()
		res := ExitResult{Stderr: stderr.String()}
		if cmd.ProcessState != nil {
			res.Code = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		switch {
		case waitErr != nil && !errors.As(waitErr, &exitErr):
			res.Err = waitErr
		case res.Code < 0:
			res.Err = waitErr
		case scanErr != nil:
			res.Err = fmt.Errorf("failed to read export output: %w", scanErr)
		}

		i.log.Info().Int("code", res.Code).AnErr("error", res.Err).Msg("Export exited")
		onExited(res)
	}()
	return nil
}

// Run exports and blocks until the process exits.
func (i *Invoker) Run(ctx context.Context, req Request, onOutputLine func(string)) (ExitResult, error) {
	var (
		once sync.Once
		done = make(chan ExitResult, 1)
	)
	err := i.ExportProject(ctx, req, onOutputLine, func(res ExitResult) {
		once.Do(func() { done <- res })
	})
	if err != nil {
		return ExitResult{}, err
	}
	return <-done, nil
}
