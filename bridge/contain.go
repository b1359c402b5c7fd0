package bridge

import (
	stderrors "errors"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/errors"
)

// AbortFunc handles a failure at a native boundary that has no way to report
// it. It normally does not return.
type AbortFunc func(err error)

// DefaultAbort logs err and exits the process with ExitCodeUnwind.
func DefaultAbort(err error) {
	Logger().Error("unrecoverable failure at native boundary", zap.Error(err))
	_ = Logger().Sync()
	os.Exit(ExitCodeUnwind)
}

// Contain runs fn and turns a panic into a cross_boundary_unwind error. It
// wraps every Go function reachable from native code.
func Contain(symbol string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Unwind(symbol, r)
			Logger().Error("panic contained at native boundary",
				zap.String("symbol", symbol),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	return fn()
}

// statusFor maps an error of an exported fallible function to the status
// reported to native code. The codes match those of the callback trampoline.
func statusFor(err error) callback.Status {
	if stderrors.Is(err, errors.ErrCrossBoundaryUnwind) {
		return callback.StatusPanicked
	}
	if s := callback.StatusOf(err); s != callback.StatusOK {
		return s
	}
	return callback.StatusError
}
