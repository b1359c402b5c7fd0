package ownership

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/slots"
)

// Handle names a resource held by a Table. Zero is never a valid handle.
type Handle uint32

type slot struct {
	res *resource
	ref Ref // set when the slot exposes a borrow instead of an owned value
}

func (s slot) lent() bool { return s.ref.loan != nil }

// Table holds resources on behalf of the native side. Adopted transfers are
// released through the table; lent references are returned by their lender.
type Table struct {
	arena *slots.Arena[slot]
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{arena: slots.New[slot]()}
}

// Adopt consumes a transfer and returns the handle the native side uses to
// refer to it. The table now owns the release responsibility.
func (t *Table) Adopt(tr Transfer) (Handle, error) {
	if tr.res == nil {
		return 0, errors.InvalidInput(errors.PhaseHandoff, "empty transfer")
	}
	if err := tr.res.move(stateTransit, stateAdopted); err != nil {
		return 0, err
	}
	h, err := t.arena.Insert(slot{res: tr.res})
	if err != nil {
		_ = tr.res.move(stateAdopted, stateTransit)
		return 0, errors.Wrap(errors.PhaseHandoff, errors.KindInvalidInput, err, "adopt transfer")
	}
	return Handle(h), nil
}

// Lend exposes a borrow under a handle. The handle stays valid until Return.
func (t *Table) Lend(r Ref) (Handle, error) {
	if !r.Valid() {
		return 0, errors.New(errors.PhaseHandoff, errors.KindStaleHandle).Detail("borrow has ended").Build()
	}
	h, err := t.arena.Insert(slot{res: r.loan.res, ref: r})
	if err != nil {
		return 0, errors.Wrap(errors.PhaseHandoff, errors.KindInvalidInput, err, "lend borrow")
	}
	return Handle(h), nil
}

// Return ends a handle created by Lend. The underlying borrow is left to
// its lender.
func (t *Table) Return(h Handle) error {
	s, ok := t.arena.Get(uint32(h))
	if !ok {
		return errors.StaleHandle(errors.PhaseHandoff, "borrow", uint32(h))
	}
	if !s.lent() {
		return errors.InvalidInput(errors.PhaseHandoff, fmt.Sprintf("handle %d is owned, not lent", h))
	}
	if _, err := t.arena.TryRemove(uint32(h)); err != nil {
		return t.arenaError(errors.PhaseHandoff, "borrow", h, err)
	}
	return nil
}

// Get borrows the resource behind h for the duration of one call. The
// returned Ref must be returned before the handle can be released or taken.
func (t *Table) Get(h Handle) (Ref, error) {
	s, ok := t.arena.Get(uint32(h))
	if !ok {
		return Ref{}, errors.StaleHandle(errors.PhaseInvoke, "resource", uint32(h))
	}
	if s.lent() {
		if !s.ref.Valid() {
			return Ref{}, errors.StaleHandle(errors.PhaseInvoke, "borrow", uint32(h))
		}
		return s.res.lend(stateLive)
	}
	return s.res.lend(stateAdopted)
}

// Take removes an adopted resource from the table and hands it back as a
// transfer, so ownership can return to the Go side.
func (t *Table) Take(h Handle) (Transfer, error) {
	s, ok := t.arena.Get(uint32(h))
	if !ok {
		return Transfer{}, errors.StaleHandle(errors.PhaseHandoff, "resource", uint32(h))
	}
	if s.lent() {
		return Transfer{}, errors.InvalidInput(errors.PhaseHandoff, fmt.Sprintf("handle %d is a borrow and cannot be moved", h))
	}
	if err := s.res.move(stateAdopted, stateTransit); err != nil {
		return Transfer{}, err
	}
	if _, err := t.arena.TryRemove(uint32(h)); err != nil {
		_ = s.res.move(stateTransit, stateAdopted)
		return Transfer{}, t.arenaError(errors.PhaseHandoff, "resource", h, err)
	}
	return Transfer{res: s.res}, nil
}

// Movable reports whether Take(h) would succeed right now, returning the
// error Take would return otherwise.
func (t *Table) Movable(h Handle) error {
	s, ok := t.arena.Get(uint32(h))
	if !ok {
		return errors.StaleHandle(errors.PhaseHandoff, "resource", uint32(h))
	}
	if s.lent() {
		return errors.InvalidInput(errors.PhaseHandoff, fmt.Sprintf("handle %d is a borrow and cannot be moved", h))
	}
	s.res.mu.Lock()
	defer s.res.mu.Unlock()
	return s.res.movableLocked(stateAdopted)
}

// Release runs the release function of an adopted resource and invalidates
// h. A second release of the same handle fails with stale_handle.
func (t *Table) Release(h Handle) error {
	s, ok := t.arena.Get(uint32(h))
	if !ok {
		return errors.StaleHandle(errors.PhaseRelease, "resource", uint32(h))
	}
	if s.lent() {
		return errors.InvalidInput(errors.PhaseRelease, fmt.Sprintf("handle %d is a borrow; its owner releases it", h))
	}
	if err := s.res.finish(stateAdopted); err != nil {
		if stderrors.Is(err, errors.ErrHandedOff) {
			return errors.StaleHandle(errors.PhaseRelease, "resource", uint32(h))
		}
		return err
	}
	_, _ = t.arena.TryRemove(uint32(h))
	return nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.arena.Len()
}

// Close releases every adopted resource still held and invalidates all
// handles. Lent handles are dropped without touching their owners.
func (t *Table) Close() {
	var held []*resource
	t.arena.Each(func(_ uint32, s slot) bool {
		if !s.lent() {
			held = append(held, s.res)
		}
		return true
	})
	t.arena.Close()
	for _, r := range held {
		_ = r.finish(stateAdopted)
	}
}

func (t *Table) arenaError(phase errors.Phase, what string, h Handle, err error) error {
	if stderrors.Is(err, slots.ErrInFlight) {
		return errors.New(phase, errors.KindInFlight).Detail("%s handle %d is in use", what, h).Build()
	}
	return errors.StaleHandle(phase, what, uint32(h))
}
