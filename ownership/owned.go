package ownership

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-bridge/errors"
)

type state uint8

const (
	stateLive     state = iota // held by an Owned
	stateTransit               // held by a Transfer
	stateAdopted               // held by a Table slot
	stateReleased
)

// resource is the single home of a value and its release function.
type resource struct {
	value   any
	release func()
	name    string
	mu      sync.Mutex
	lends   int
	state   state
}

// move transitions from one holder state to another.
func (r *resource) move(from, to state) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.movableLocked(from); err != nil {
		return err
	}
	r.state = to
	return nil
}

// movableLocked reports why the resource cannot leave the from state.
// Caller holds mu.
func (r *resource) movableLocked(from state) error {
	if r.state != from {
		return r.stateError(errors.PhaseHandoff)
	}
	if r.lends > 0 {
		return errors.New(errors.PhaseHandoff, errors.KindInFlight).
			GoType(r.name).
			Detail("%d borrow(s) outstanding", r.lends).
			Build()
	}
	return nil
}

// finish releases the resource if it is held in the from state.
func (r *resource) finish(from state) error {
	r.mu.Lock()
	if r.state != from {
		err := r.stateError(errors.PhaseRelease)
		r.mu.Unlock()
		return err
	}
	if r.lends > 0 {
		n := r.lends
		r.mu.Unlock()
		return errors.New(errors.PhaseRelease, errors.KindInFlight).
			GoType(r.name).
			Detail("%d borrow(s) outstanding", n).
			Build()
	}
	r.state = stateReleased
	release := r.release
	r.release = nil
	r.value = nil
	r.mu.Unlock()

	if release != nil {
		release()
	}
	return nil
}

func (r *resource) stateError(phase errors.Phase) error {
	kind := errors.KindStaleHandle
	if r.state == stateTransit || r.state == stateAdopted {
		kind = errors.KindHandedOff
	}
	return errors.New(phase, kind).GoType(r.name).Detail("resource is %s", r.state).Build()
}

func (s state) String() string {
	switch s {
	case stateLive:
		return "owned"
	case stateTransit:
		return "in transit"
	case stateAdopted:
		return "held across the boundary"
	}
	return "released"
}

// Owned is the unique owner of a value that needs an explicit release.
// It must not be copied after first use.
type Owned[T any] struct {
	res *resource
	mu  sync.Mutex
}

// New takes ownership of value. release runs exactly once, on whichever
// side ends up releasing it.
func New[T any](value T, release func(T)) *Owned[T] {
	res := &resource{value: value, name: fmt.Sprintf("%T", value)}
	if release != nil {
		res.release = func() { release(value) }
	}
	return &Owned[T]{res: res}
}

// take detaches the resource, leaving o empty.
func (o *Owned[T]) take() *resource {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.res
	o.res = nil
	return r
}

func (o *Owned[T]) peek() *resource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res
}

// Value returns the owned value.
func (o *Owned[T]) Value() (T, error) {
	var zero T
	r := o.peek()
	if r == nil {
		return zero, errors.New(errors.PhaseHandoff, errors.KindHandedOff).Detail("owner is empty").Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateLive {
		return zero, r.stateError(errors.PhaseHandoff)
	}
	return r.value.(T), nil
}

// Valid reports whether o still owns its value.
func (o *Owned[T]) Valid() bool {
	r := o.peek()
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateLive
}

// Release runs the release function. It fails on an empty owner, a second
// release, or while borrows are outstanding.
func (o *Owned[T]) Release() error {
	r := o.peek()
	if r == nil {
		return errors.New(errors.PhaseRelease, errors.KindHandedOff).Detail("owner is empty").Build()
	}
	return r.finish(stateLive)
}

// Transfer carries an owned resource across the boundary. Adopting it into
// a Table, or receiving it back into an Owned, consumes it.
type Transfer struct {
	res *resource
}

// Valid reports whether the transfer has not been consumed yet.
func (t Transfer) Valid() bool {
	if t.res == nil {
		return false
	}
	t.res.mu.Lock()
	defer t.res.mu.Unlock()
	return t.res.state == stateTransit
}

// HandOff consumes o and returns the transfer that now holds its release
// responsibility. o is left empty.
func HandOff[T any](o *Owned[T]) (Transfer, error) {
	r := o.peek()
	if r == nil {
		return Transfer{}, errors.New(errors.PhaseHandoff, errors.KindHandedOff).Detail("owner is empty").Build()
	}
	if err := r.move(stateLive, stateTransit); err != nil {
		return Transfer{}, err
	}
	o.take()
	return Transfer{res: r}, nil
}

// Receive turns a transfer back into an owner on this side.
func Receive[T any](t Transfer) (*Owned[T], error) {
	if t.res == nil {
		return nil, errors.InvalidInput(errors.PhaseHandoff, "empty transfer")
	}
	t.res.mu.Lock()
	_, ok := t.res.value.(T)
	t.res.mu.Unlock()
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseHandoff, nil, fmt.Sprintf("%T", *new(T)), t.res.name)
	}
	if err := t.res.move(stateTransit, stateLive); err != nil {
		return nil, err
	}
	return &Owned[T]{res: t.res}, nil
}

// Ref is a borrow of an owned resource, valid until returned.
type Ref struct {
	loan *loan
}

type loan struct {
	res  *resource
	done atomic.Bool
}

// lend borrows the resource while it is held in the holder state.
func (r *resource) lend(holder state) (Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != holder {
		return Ref{}, r.stateError(errors.PhaseHandoff)
	}
	r.lends++
	return Ref{loan: &loan{res: r}}, nil
}

// Value returns the borrowed value.
func (r Ref) Value() (any, error) {
	if r.loan == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "empty reference")
	}
	res := r.loan.res
	res.mu.Lock()
	defer res.mu.Unlock()
	if r.loan.done.Load() || res.state == stateReleased {
		return nil, errors.New(errors.PhaseInvoke, errors.KindStaleHandle).
			GoType(res.name).
			Detail("borrow has ended").
			Build()
	}
	return res.value, nil
}

// Valid reports whether the borrow is still active.
func (r Ref) Valid() bool {
	return r.loan != nil && !r.loan.done.Load()
}

// Lend borrows the value owned by o. The borrow must be ended with Return.
func Lend[T any](o *Owned[T]) (Ref, error) {
	r := o.peek()
	if r == nil {
		return Ref{}, errors.New(errors.PhaseHandoff, errors.KindHandedOff).Detail("owner is empty").Build()
	}
	return r.lend(stateLive)
}

// Return ends the borrow. Later calls are no-ops.
func (r Ref) Return() {
	if r.loan == nil || !r.loan.done.CompareAndSwap(false, true) {
		return
	}
	res := r.loan.res
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.lends > 0 {
		res.lends--
	}
}
