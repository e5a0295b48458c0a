package domain

import "fmt"

// ErrorKind separates fatal run aborts from recoverable skips.
type ErrorKind string

// Error kinds.
const (
	// KindFatal aborts the run. Look-ahead violations and data errors are
	// always fatal and never retried.
	KindFatal ErrorKind = "fatal"
	// KindSkip drops the offending signal and continues the run, e.g. an
	// order rejected for insufficient margin.
	KindSkip ErrorKind = "skip"
)

// Stage identifies which phase of a run produced an error.
type Stage string

// Run stages.
const (
	StageValidation Stage = "validation"
	StageDataLoad   Stage = "data_load"
	StageReplay     Stage = "replay"
	StageReduction  Stage = "reduction"
)

// RunError is the structured error for everything that can go wrong inside
// a run. Callers branch on Kind: fatal errors abort, skip errors continue.
type RunError struct {
	Kind       ErrorKind
	Stage      Stage
	Instrument string // offending instrument, when known
	Reason     string
	Err        error // wrapped cause, may be nil
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s error in %s stage", e.Kind, e.Stage)
	if e.Instrument != "" {
		msg += " [" + e.Instrument + "]"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }

// Fatal reports whether the error must abort the run.
func (e *RunError) Fatal() bool { return e.Kind == KindFatal }

// NewFatal builds a run-aborting error.
func NewFatal(stage Stage, instrument, reason string, err error) *RunError {
	return &RunError{Kind: KindFatal, Stage: stage, Instrument: instrument, Reason: reason, Err: err}
}

// NewSkip builds a continue-the-run error.
func NewSkip(stage Stage, instrument, reason string, err error) *RunError {
	return &RunError{Kind: KindSkip, Stage: stage, Instrument: instrument, Reason: reason, Err: err}
}
