package callback

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/slots"
)

// Handle identifies a registered callback. Zero is never a valid handle.
type Handle uint32

// Func is the uniform callback signature. Arguments and results are flat
// value slots.
type Func func(ctx context.Context, args []uint64) ([]uint64, error)

// Table is a registry of callbacks addressed by handle.
// All methods are safe for concurrent use.
type Table struct {
	arena *slots.Arena[Func]
}

// NewTable creates an empty callback table.
func NewTable() *Table {
	return &Table{arena: slots.New[Func]()}
}

// Wrap registers fn and returns its handle.
func (t *Table) Wrap(fn Func) (Handle, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseRegister, "nil callback")
	}
	h, err := t.arena.Insert(fn)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "register callback")
	}
	Logger().Debug("callback registered", zap.Uint32("handle", h))
	return Handle(h), nil
}

// Invoke runs the callback behind h. A released or unknown handle fails
// with stale_handle. A panic in the callback is recovered into an error
// whose cause is ErrPanicked.
func (t *Table) Invoke(ctx context.Context, h Handle, args []uint64) (results []uint64, err error) {
	fn, ok := t.arena.Acquire(uint32(h))
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseInvoke, "callback", uint32(h))
	}
	defer t.arena.Done(uint32(h))

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("callback panicked",
				zap.Uint32("handle", uint32(h)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			results = nil
			err = errors.New(errors.PhaseInvoke, errors.KindNativeStatus).
				Path(fmt.Sprintf("callback#%d", h)).
				Value(r).
				Cause(ErrPanicked).
				Detail("%v", r).
				Build()
		}
	}()

	return fn(ctx, args)
}

// Release unregisters h. New invocations fail at once; Release then waits
// for running invocations to return or ctx to end. When ctx ends first the
// handle stays unusable and is freed by the last running invocation.
func (t *Table) Release(ctx context.Context, h Handle) error {
	_, err := t.arena.Remove(ctx, uint32(h))
	if err != nil {
		return t.releaseError(h, err)
	}
	Logger().Debug("callback released", zap.Uint32("handle", uint32(h)))
	return nil
}

// TryRelease unregisters h only if no invocation is running.
func (t *Table) TryRelease(h Handle) error {
	if _, err := t.arena.TryRemove(uint32(h)); err != nil {
		return t.releaseError(h, err)
	}
	Logger().Debug("callback released", zap.Uint32("handle", uint32(h)))
	return nil
}

// InFlight returns the number of running invocations of h.
func (t *Table) InFlight(h Handle) int {
	return int(t.arena.InFlight(uint32(h)))
}

// Len returns the number of registered callbacks.
func (t *Table) Len() int {
	return t.arena.Len()
}

// Close drops every callback. Later calls fail with stale_handle.
func (t *Table) Close() {
	t.arena.Close()
}

func (t *Table) releaseError(h Handle, err error) error {
	switch {
	case stderrors.Is(err, slots.ErrInFlight):
		return errors.New(errors.PhaseRelease, errors.KindInFlight).
			Detail("callback handle %d has %d running invocation(s)", h, t.InFlight(h)).
			Build()
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.PhaseRelease, errors.KindInFlight).
			Cause(err).
			Detail("callback handle %d still running", h).
			Build()
	}
	return errors.StaleHandle(errors.PhaseRelease, "callback", uint32(h))
}
