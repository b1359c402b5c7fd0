package callback

import (
	stderrors "errors"

	"github.com/wippyai/wasm-bridge/errors"
)

// Status is the result code returned to native callers of the trampoline.
type Status uint32

const (
	StatusOK Status = iota
	StatusStale
	StatusPanicked
	StatusError
	StatusBadArgs
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStale:
		return "stale"
	case StatusPanicked:
		return "panicked"
	case StatusError:
		return "error"
	case StatusBadArgs:
		return "bad_args"
	case StatusBusy:
		return "busy"
	}
	return "unknown"
}

// ErrPanicked is the cause of errors produced by a recovered panic.
var ErrPanicked = stderrors.New("callback panicked")

// StatusOf maps an error returned by Invoke or Release to a status code.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case stderrors.Is(err, ErrPanicked):
		return StatusPanicked
	case stderrors.Is(err, errors.ErrStaleHandle):
		return StatusStale
	case stderrors.Is(err, errors.ErrInFlight):
		return StatusBusy
	case stderrors.Is(err, &errors.Error{Kind: errors.KindArityMismatch}),
		stderrors.Is(err, &errors.Error{Kind: errors.KindOutOfBounds}):
		return StatusBadArgs
	}
	return StatusError
}
