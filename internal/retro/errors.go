package retro

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteAnalysis is returned when a ply required for scanning has
	// no settled evaluation.
	ErrIncompleteAnalysis = errors.New("incomplete analysis")

	// ErrInvalidTransition is returned when a command is not valid in the
	// session's current state. The session is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSessionClosed is returned by every command after Close.
	ErrSessionClosed = errors.New("review session closed")

	// ErrNoSession is returned when a session ID is unknown.
	ErrNoSession = errors.New("no such review session")
)

// IncompleteAnalysisError names the ply whose analysis is missing.
type IncompleteAnalysisError struct {
	Path   Path
	Reason string
}

func (e *IncompleteAnalysisError) Error() string {
	return fmt.Sprintf("incomplete analysis at path %q: %s", e.Path, e.Reason)
}

func (e *IncompleteAnalysisError) Unwrap() error {
	return ErrIncompleteAnalysis
}

// TransitionError records a command that was rejected in a given state.
type TransitionError struct {
	Command string
	State   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Command, e.State)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
