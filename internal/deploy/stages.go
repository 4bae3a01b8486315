package deploy

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/lobinuxsoft/devkit-deploy/internal/export"
	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
	"github.com/lobinuxsoft/devkit-deploy/pkg/protocol"
	"github.com/lobinuxsoft/devkit-deploy/pkg/transfer"
)

func (r *run) build() error {
	if r.settings.UploadMethod == config.CleanReplace {
		r.deletePrevious()
	}

	req := export.Request{
		Tool:        r.settings.ExportTool,
		ProjectPath: r.settings.ProjectPath,
		OutputPath:  r.settings.ExecutablePath(),
		Preset:      r.settings.ExportPreset,
		Release:     r.settings.Release,
	}
	r.logf(Building, "Exporting %s to %s", r.settings.ProjectName, req.OutputPath)

	res, err := r.exporter.Run(r.ctx, req, func(line string) {
		r.logLine(Building, line)
	})
	if err != nil {
		return err
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stderr), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			r.logLine(Building, line)
		}
	}
	if res.Failed() {
		return exportError{res}
	}
	return nil
}

type exportError struct {
	res export.ExitResult
}

func (e exportError) Error() string {
	return e.res.String()
}

func (e exportError) Unwrap() error {
	return e.res.Err
}

// deletePrevious removes the remote title so the new build starts clean.
// Failures are logged and otherwise ignored.
func (r *run) deletePrevious() {
	gameID := r.session.GameID()
	cmd := protocol.DeleteTitleCommand(gameID)
	r.logf(Building, "Removing previous build of %s", gameID)

	op := func() error {
		_, err := r.remote.RunCommand(r.ctx, cmd)
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Dur("retry_in", wait).Msg("Delete of previous build failed")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(r.deleteBackoff(), r.ctx), notify); err != nil {
		r.logf(Building, "Could not remove previous build: %v", err)
	}
}

func (r *run) prepareUpload() error {
	out, err := r.remote.RunCommand(r.ctx, protocol.PrepareUploadCommand(r.session.GameID()))
	if err != nil {
		return err
	}

	res, err := protocol.ParsePrepareUpload(out)
	if err != nil {
		return err
	}
	r.session.setPrepared(res)
	r.logf(PrepareUpload, "Upload directory: %s (user %s)", res.Directory, res.User)
	return nil
}

func (r *run) upload() error {
	dir := r.session.Prepared().Directory
	reporter := transfer.NewReporter(func(line string) { r.logLine(Uploading, line) }, r.progressInterval)
	r.uploaded = make(map[string]int64)
	if _, _, total, err := transfer.CollectFiles(r.settings.BuildPath); err == nil {
		reporter.Expect(total)
	}

	r.logf(Uploading, "Uploading %s to %s", r.settings.BuildPath, dir)
	err := r.remote.UploadDirectory(r.ctx, r.settings.BuildPath, dir, func(file string, sent, total int64) {
		if delta := sent - r.uploaded[file]; delta > 0 {
			r.metrics.BytesUploaded.Add(float64(delta))
			r.uploaded[file] = sent
		}
		reporter.Report(file, sent, total)
	})
	if err != nil {
		return err
	}

	r.logLine(Uploading, reporter.Summary())
	return nil
}

func (r *run) createShortcut() error {
	argv := []string{r.settings.ExecutableName}
	if r.settings.StartParameters != "" {
		argv = append(argv, r.settings.StartParameters)
	}

	cmd, err := protocol.CreateShortcutCommand(protocol.CreateShortcutParams{
		GameID:    r.session.GameID(),
		Directory: r.session.Prepared().Directory,
		Argv:      argv,
		Settings:  map[string]string{"steam_play": r.settings.SteamPlay},
	})
	if err != nil {
		return &ShortcutError{Err: err}
	}

	out, err := r.remote.RunCommand(r.ctx, cmd)
	if err != nil {
		return &ShortcutError{Err: err}
	}

	res, err := protocol.ParseCreateShortcut(out)
	if err != nil {
		return &ShortcutError{Err: err}
	}
	r.session.setShortcut(res)

	if res.Failed() {
		return &ShortcutError{Message: res.Message()}
	}
	if msg := res.Message(); msg != "" {
		r.logf(CreateShortcut, "Shortcut registered: %s", msg)
	} else {
		r.logLine(CreateShortcut, "Shortcut registered")
	}
	return nil
}
