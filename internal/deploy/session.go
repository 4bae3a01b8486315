package deploy

import (
	"fmt"
	"sync"
	"time"

	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
	"github.com/lobinuxsoft/devkit-deploy/pkg/protocol"
)

// Transition is one recorded stage status change.
type Transition struct {
	Stage  Stage
	Status StageStatus
	At     time.Time
}

// Session is the state of one deploy. It is safe to read while the deploy runs.
type Session struct {
	mu          sync.RWMutex
	id          string
	gameID      string
	device      discovery.Device
	current     Stage
	statuses    map[Stage]StageStatus
	logs        map[Stage][]string
	transitions []Transition
	prepared    protocol.PrepareUploadResult
	shortcut    *protocol.CreateShortcutResult
	started     time.Time
	finished    time.Time
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		id:       id,
		current:  Init,
		statuses: make(map[Stage]StageStatus, len(Stages)),
		logs:     make(map[Stage][]string, len(Stages)),
		started:  now,
	}
	for _, stage := range Stages {
		s.statuses[stage] = Queued
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// GameID returns the remote title id, empty until Init succeeded.
func (s *Session) GameID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameID
}

// Device returns the target device.
func (s *Session) Device() discovery.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Current returns the stage the session is in.
func (s *Session) Current() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Status returns the status of stage.
func (s *Session) Status(stage Stage) StageStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[stage]
}

// Statuses returns a copy of every stage status.
func (s *Session) Statuses() map[Stage]StageStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Stage]StageStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// Logs returns the log lines recorded for stage.
func (s *Session) Logs(stage Stage) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.logs[stage]...)
}

// Transitions returns every recorded status change in order.
func (s *Session) Transitions() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transition(nil), s.transitions...)
}

// Prepared returns the prepare-upload result.
func (s *Session) Prepared() protocol.PrepareUploadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prepared
}

// Shortcut returns the shortcut registration result, nil if none was parsed.
func (s *Session) Shortcut() *protocol.CreateShortcutResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortcut
}

// Finished reports whether the session reached Done.
func (s *Session) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.finished.IsZero()
}

// setStatus records a transition. Stages may only move forward and a terminal
// status is never changed.
func (s *Session) setStatus(stage Stage, status StageStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage < s.current {
		return fmt.Errorf("stage %s is behind current stage %s", stage, s.current)
	}
	prev := s.statuses[stage]
	if prev.Terminal() || status < prev {
		return fmt.Errorf("stage %s cannot move from %s to %s", stage, prev, status)
	}

	s.current = stage
	s.statuses[stage] = status
	s.transitions = append(s.transitions, Transition{Stage: stage, Status: status, At: at})
	if stage == Done && status.Terminal() {
		s.finished = at
	}
	return nil
}

func (s *Session) appendLog(stage Stage, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[stage] = append(s.logs[stage], text)
}

func (s *Session) setTarget(device discovery.Device, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device
	s.gameID = gameID
}

func (s *Session) setPrepared(r protocol.PrepareUploadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared = r
}

func (s *Session) setShortcut(r protocol.CreateShortcutResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortcut = &r
}

// Report is the summary returned by Deploy.
type Report struct {
	SessionID string
	GameID    string
	Device    discovery.Device
	Directory string
	Outcome   Outcome
	Statuses  map[Stage]StageStatus
	Warning   error
	Started   time.Time
	Finished  time.Time
}

// Duration returns how long the deploy took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (s *Session) report(outcome Outcome, warning error) *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[Stage]StageStatus, len(s.statuses))
	for k, v := range s.statuses {
		statuses[k] = v
	}
	return &Report{
		SessionID: s.id,
		GameID:    s.gameID,
		Device:    s.device,
		Directory: s.prepared.Directory,
		Outcome:   outcome,
		Statuses:  statuses,
		Warning:   warning,
		Started:   s.started,
		Finished:  s.finished,
	}
}
