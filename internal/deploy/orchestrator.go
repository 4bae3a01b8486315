package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lobinuxsoft/devkit-deploy/internal/device"
	"github.com/lobinuxsoft/devkit-deploy/internal/export"
	"github.com/lobinuxsoft/devkit-deploy/internal/metrics"
	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
	"github.com/lobinuxsoft/devkit-deploy/pkg/transfer"
)

// DefaultProgressInterval throttles intermediate upload percentage lines.
const DefaultProgressInterval = 250 * time.Millisecond

// Remote is the device side of a deploy.
type Remote interface {
	RunCommand(ctx context.Context, cmd string) (string, error)
	UploadDirectory(ctx context.Context, localDir, remoteDir string, onProgress transfer.ProgressFunc) error
}

// RemoteFactory opens a Remote for a device. A missing key must be reported
// as device.ErrMissingCredential.
type RemoteFactory func(discovery.Device) (Remote, error)

// Exporter runs the engine export to completion.
type Exporter interface {
	Run(ctx context.Context, req export.Request, onOutputLine func(string)) (export.ExitResult, error)
}

// DeviceLookup resolves a device id to a paired device.
type DeviceLookup interface {
	Lookup(id string) (discovery.Device, error)
}

// Orchestrator runs deploys one at a time.
type Orchestrator struct {
	devices          DeviceLookup
	settings         config.Settings
	newRemote        RemoteFactory
	exporter         Exporter
	observer         observers
	log              zerolog.Logger
	metrics          *metrics.Deploy
	now              func() time.Time
	cancellable      bool
	deleteBackoff    func() backoff.BackOff
	progressInterval time.Duration

	mu      sync.Mutex
	active  bool
	session *Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver adds an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = append(o.observer, obs)
		}
	}
}

// WithLogger sets the logger every event is mirrored to.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRemoteFactory replaces how device sessions are opened.
func WithRemoteFactory(f RemoteFactory) Option {
	return func(o *Orchestrator) { o.newRemote = f }
}

// WithExporter replaces the export invoker.
func WithExporter(e Exporter) Option {
	return func(o *Orchestrator) { o.exporter = e }
}

// WithMetrics records deploy metrics.
func WithMetrics(m *metrics.Deploy) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithCancellable lets cancellation of the Deploy context abort running
// stages. By default a started deploy always runs to Done.
func WithCancellable(cancellable bool) Option {
	return func(o *Orchestrator) { o.cancellable = cancellable }
}

// WithDeleteBackoff sets the retry policy for the pre-build delete.
func WithDeleteBackoff(f func() backoff.BackOff) Option {
	return func(o *Orchestrator) { o.deleteBackoff = f }
}

// WithProgressInterval sets the minimum delay between upload percentage lines.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// New creates an orchestrator deploying with settings to devices found in registry.
func New(registry DeviceLookup, settings config.Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		devices:          registry,
		settings:         settings,
		log:              zerolog.Nop(),
		now:              time.Now,
		deleteBackoff:    defaultDeleteBackoff,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.exporter == nil {
		o.exporter = export.NewInvoker(o.log)
	}
	if o.newRemote == nil {
		log := o.log
		o.newRemote = func(d discovery.Device) (Remote, error) {
			s, err := device.NewSession(d, device.WithLogger(log))
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	if o.metrics == nil {
		o.metrics = metrics.NewDeploy(nil)
	}
	return o
}

func defaultDeleteBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

// Session returns the current or last session, nil before the first deploy.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Active reports whether a deploy is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// CanDismiss reports whether the deploy view may be closed: nothing has
// started yet or the last session reached Done.
func (o *Orchestrator) CanDismiss() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active {
		return false
	}
	return o.session == nil || o.session.Current() == Done
}

func (o *Orchestrator) begin(s *Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active {
		return false
	}
	o.active = true
	o.session = s
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = false
}

// Deploy runs every stage against the paired device deviceID. A soft failure
// while registering the shortcut returns a nil error and a report with
// OutcomeShortcutFailed. Any other failure returns a *StageError.
func (o *Orchestrator) Deploy(ctx context.Context, deviceID string) (*Report, error) {
	s := newSession(uuid.NewString(), o.now())
	if !o.begin(s) {
		return nil, ErrDeployInProgress
	}
	defer o.end()

	o.metrics.ActiveDeploys.Inc()
	defer o.metrics.ActiveDeploys.Dec()

	stageCtx := ctx
	if !o.cancellable {
		stageCtx = context.WithoutCancel(ctx)
	}

	r := &run{
		Orchestrator: o,
		ctx:          stageCtx,
		session:      s,
		settings:     o.settings,
		log:          o.log.With().Str("session", s.ID()).Logger(),
	}
	return r.execute(deviceID)
}

// run carries the state of one Deploy call.
type run struct {
	*Orchestrator
	ctx      context.Context
	session  *Session
	settings config.Settings
	log      zerolog.Logger
	remote   Remote
	entered  time.Time
	uploaded map[string]int64
}

type stageFunc func() error

func (r *run) execute(deviceID string) (*Report, error) {
	stages := []struct {
		stage Stage
		fn    stageFunc
	}{
		{Init, func() error { return r.initialize(deviceID) }},
		{Building, r.build},
		{PrepareUpload, r.prepareUpload},
		{Uploading, r.upload},
		{CreateShortcut, r.createShortcut},
	}

	var warning error
	for _, st := range stages {
		r.transition(st.stage, Running)
		err := st.fn()
		if err == nil {
			r.transition(st.stage, Succeeded)
			continue
		}

		r.logf(st.stage, "%s failed: %v", st.stage, err)
		r.transition(st.stage, Failed)

		var shortcutErr *ShortcutError
		if errors.As(err, &shortcutErr) {
			warning = shortcutErr
			continue
		}

		r.finish(Failed, OutcomeFailed)
		return r.session.report(OutcomeFailed, nil), &StageError{Stage: st.stage, Err: err}
	}

	if warning != nil {
		r.finish(Succeeded, OutcomeShortcutFailed)
		return r.session.report(OutcomeShortcutFailed, warning), nil
	}
	r.finish(Succeeded, OutcomeSucceeded)
	return r.session.report(OutcomeSucceeded, nil), nil
}

func (r *run) finish(status StageStatus, outcome Outcome) {
	r.logf(Done, "Deploy %s", outcome)
	r.transition(Done, status)
	r.metrics.ObserveDeploy(outcome.String())
}

func (r *run) transition(stage Stage, status StageStatus) {
	now := r.now()
	if err := r.session.setStatus(stage, status, now); err != nil {
		r.log.Error().Err(err).Msg("Rejected stage transition")
		return
	}

	switch {
	case status == Running:
		r.entered = now
	case status.Terminal() && stage != Done:
		r.metrics.ObserveStage(stage.String(), status.String(), now.Sub(r.entered))
	}

	r.log.Info().Str("stage", stage.String()).Str("status", status.String()).Msg("Stage changed")
	r.observer.OnStageChanged(stage, status)
}

func (r *run) logf(stage Stage, format string, args ...any) {
	r.logLine(stage, fmt.Sprintf(format, args...))
}

func (r *run) logLine(stage Stage, text string) {
	r.session.appendLog(stage, text)
	r.log.Debug().Str("stage", stage.String()).Msg(text)
	r.observer.OnLogLine(stage, text)
}

func (r *run) initialize(deviceID string) error {
	dev, err := r.devices.Lookup(deviceID)
	if err != nil {
		return err
	}
	r.logf(Init, "Target device: %s", dev)

	r.settings.ApplyDefaults()
	if err := r.settings.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := checkDir(r.settings.BuildPath); err != nil {
		return &ConfigError{Field: "build_path", Err: err}
	}

	gameID := GameID(r.settings.ProjectName, r.settings.UploadMethod, r.now())
	r.session.setTarget(dev, gameID)
	r.logf(Init, "Game ID: %s (%s upload)", gameID, r.settings.UploadMethod)

	remote, err := r.newRemote(dev)
	if err != nil {
		return err
	}
	r.remote = remote
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
