package slots

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrClosed   = errors.New("slot arena closed")
	ErrStale    = errors.New("stale slot")
	ErrInFlight = errors.New("slot has in-flight uses")
	ErrFull     = errors.New("slot arena full")
)

// A handle is the 1-based slot index in the low 20 bits and the slot
// generation above it. A slot whose generation reaches MaxGeneration is
// retired instead of reused, so no released handle ever becomes valid again.
const (
	indexBits = 20
	indexMask = 1<<indexBits - 1

	MaxGeneration = 1<<(32-indexBits) - 1
)

func makeHandle(idx, gen uint32) uint32 {
	return gen<<indexBits | idx
}

func splitHandle(h uint32) (idx, gen uint32) {
	return h & indexMask, h >> indexBits
}

// Arena is an in-memory slot table with in-flight tracking.
type Arena[T any] struct {
	entries  []entry[T]
	freeList []uint32
	mu       sync.Mutex
	closed   bool
}

type entry[T any] struct {
	value    T
	drained  chan struct{}
	inflight uint32
	gen      uint32
	valid    bool
	closing  bool
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{
		entries:  make([]entry[T], 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores a value and returns its handle.
func (a *Arena[T]) Insert(value T) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, ErrClosed
	}

	if len(a.freeList) > 0 {
		idx := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		e := &a.entries[idx-1]
		e.value = value
		e.valid = true
		return makeHandle(idx, e.gen), nil
	}

	if len(a.entries) >= indexMask {
		return 0, ErrFull
	}
	a.entries = append(a.entries, entry[T]{value: value, valid: true})
	return makeHandle(uint32(len(a.entries)), 0), nil
}

// entry returns the slot addressed by h if its generation matches,
// live or not. Caller holds mu.
func (a *Arena[T]) entry(h uint32) *entry[T] {
	idx, gen := splitHandle(h)
	if idx == 0 || int(idx) > len(a.entries) {
		return nil
	}
	e := &a.entries[idx-1]
	if !e.valid || e.gen != gen {
		return nil
	}
	return e
}

// lookup returns the live, non-closing entry for h. Caller holds mu.
func (a *Arena[T]) lookup(h uint32) *entry[T] {
	e := a.entry(h)
	if e == nil || e.closing {
		return nil
	}
	return e
}

// Get retrieves a value without marking it in use.
func (a *Arena[T]) Get(idx uint32) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.lookup(idx)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Acquire marks the slot in use and returns its value.
// Every successful Acquire must be paired with one Done.
func (a *Arena[T]) Acquire(idx uint32) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.lookup(idx)
	if e == nil {
		var zero T
		return zero, false
	}
	e.inflight++
	return e.value, true
}

// Done ends one in-flight use started by Acquire. The last use of a
// closing slot frees it.
func (a *Arena[T]) Done(idx uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.entry(idx)
	if e == nil || e.inflight == 0 {
		return
	}
	e.inflight--
	if e.inflight == 0 && e.closing {
		if e.drained != nil {
			close(e.drained)
		}
		a.free(idx)
	}
}

// InFlight returns the number of outstanding uses of idx.
func (a *Arena[T]) InFlight(idx uint32) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e := a.entry(idx); e != nil {
		return e.inflight
	}
	return 0
}

// TryRemove frees the slot if it has no in-flight uses.
func (a *Arena[T]) TryRemove(idx uint32) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	e := a.lookup(idx)
	if e == nil {
		return zero, ErrStale
	}
	if e.inflight > 0 {
		return zero, ErrInFlight
	}
	return a.free(idx), nil
}

// Remove closes the slot to new acquisitions, waits for in-flight uses to
// drain and frees it. If ctx ends first the slot stays closed and is freed
// by the last Done.
func (a *Arena[T]) Remove(ctx context.Context, idx uint32) (T, error) {
	a.mu.Lock()

	var zero T
	e := a.lookup(idx)
	if e == nil {
		a.mu.Unlock()
		return zero, ErrStale
	}
	if e.inflight == 0 {
		v := a.free(idx)
		a.mu.Unlock()
		return v, nil
	}

	e.closing = true
	drained := make(chan struct{})
	e.drained = drained
	value := e.value
	gen := e.gen
	a.mu.Unlock()

	select {
	case <-drained:
		return value, nil
	case <-ctx.Done():
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e = a.entry(idx)
	if a.closed || e == nil || e.gen != gen {
		return value, nil
	}
	e.drained = nil
	return zero, ctx.Err()
}

// free releases the slot. Caller holds mu.
func (a *Arena[T]) free(h uint32) T {
	var zero T
	idx, _ := splitHandle(h)
	e := &a.entries[idx-1]
	v := e.value
	e.value = zero
	e.valid = false
	e.closing = false
	e.inflight = 0
	e.drained = nil
	if e.gen == MaxGeneration {
		return v
	}
	e.gen++
	a.freeList = append(a.freeList, idx)
	return v
}

// Len returns the number of live slots, closing ones included.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for i := range a.entries {
		if a.entries[i].valid {
			n++
		}
	}
	return n
}

// Each iterates over live slots that are not closing.
func (a *Arena[T]) Each(fn func(uint32, T) bool) {
	a.mu.Lock()
	snapshot := make([]struct {
		idx   uint32
		value T
	}, 0, len(a.entries))
	for i := range a.entries {
		if a.entries[i].valid && !a.entries[i].closing {
			snapshot = append(snapshot, struct {
				idx   uint32
				value T
			}{makeHandle(uint32(i+1), a.entries[i].gen), a.entries[i].value})
		}
	}
	a.mu.Unlock()

	for _, s := range snapshot {
		if !fn(s.idx, s.value) {
			return
		}
	}
}

// Close drops every slot and rejects further inserts.
func (a *Arena[T]) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	for i := range a.entries {
		if d := a.entries[i].drained; d != nil {
			close(d)
		}
	}
	a.entries = nil
	a.freeList = nil
}
