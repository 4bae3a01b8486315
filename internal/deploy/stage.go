// Package deploy drives a build through export, upload and shortcut
// registration on a devkit.
package deploy

// Stage is one step of the deploy pipeline.
type Stage int

// Stages in execution order.
const (
	Init Stage = iota
	Building
	PrepareUpload
	Uploading
	CreateShortcut
	Done
)

// Stages lists every stage in execution order.
var Stages = []Stage{Init, Building, PrepareUpload, Uploading, CreateShortcut, Done}

func (s Stage) String() string {
	switch s {
	case Init:
		return "Init"
	case Building:
		return "Building"
	case PrepareUpload:
		return "PrepareUpload"
	case Uploading:
		return "Uploading"
	case CreateShortcut:
		return "CreateShortcut"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// StageStatus is the state of a single stage.
type StageStatus int

const (
	Queued StageStatus = iota
	Running
	Succeeded
	Failed
)

func (s StageStatus) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status is final.
func (s StageStatus) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Outcome summarizes a finished deploy.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	// OutcomeShortcutFailed means the build is on the device but the Steam
	// shortcut could not be registered.
	OutcomeShortcutFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeShortcutFailed:
		return "shortcut_failed"
	default:
		return "unknown"
	}
}
