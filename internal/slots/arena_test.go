package slots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArena_InsertGetRemove(t *testing.T) {
	a := New[string]()

	idx, err := a.Insert("first")
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)

	v, ok := a.Get(idx)
	require.True(t, ok)
	require.Equal(t, "first", v)

	v, err = a.TryRemove(idx)
	require.NoError(t, err)
	require.Equal(t, "first", v)

	_, ok = a.Get(idx)
	require.False(t, ok)
	require.Equal(t, 0, a.Len())

	_, err = a.TryRemove(idx)
	require.ErrorIs(t, err, ErrStale)
}

func TestArena_ZeroIndexInvalid(t *testing.T) {
	a := New[int]()
	_, ok := a.Get(0)
	require.False(t, ok)
	_, ok = a.Acquire(0)
	require.False(t, ok)
	_, err := a.TryRemove(0)
	require.ErrorIs(t, err, ErrStale)
}

func TestArena_ReusesFreedSlots(t *testing.T) {
	a := New[int]()
	h1, _ := a.Insert(1)
	h2, _ := a.Insert(2)
	_, err := a.TryRemove(h1)
	require.NoError(t, err)

	h3, _ := a.Insert(3)
	require.NotEqual(t, h1, h3)
	require.NotEqual(t, h2, h3)
	require.Equal(t, h1&indexMask, h3&indexMask, "slot index reused")

	v, ok := a.Get(h3)
	require.True(t, ok)
	require.Equal(t, 3, v)

	// the old handle names a previous generation of the same slot
	_, ok = a.Get(h1)
	require.False(t, ok)
	_, err = a.TryRemove(h1)
	require.ErrorIs(t, err, ErrStale)
	require.Equal(t, 2, a.Len())
}

func TestArena_TryRemoveInFlight(t *testing.T) {
	a := New[int]()
	h, _ := a.Insert(7)

	_, ok := a.Acquire(h)
	require.True(t, ok)
	require.Equal(t, uint32(1), a.InFlight(h))

	_, err := a.TryRemove(h)
	require.ErrorIs(t, err, ErrInFlight)

	a.Done(h)
	_, err = a.TryRemove(h)
	require.NoError(t, err)
}

func TestArena_RemoveWaitsForInFlight(t *testing.T) {
	a := New[int]()
	h, _ := a.Insert(9)
	_, ok := a.Acquire(h)
	require.True(t, ok)

	removed := make(chan int, 1)
	go func() {
		v, err := a.Remove(context.Background(), h)
		if err == nil {
			removed <- v
		}
		close(removed)
	}()

	// closing slots reject new acquisitions while the call drains
	require.Eventually(t, func() bool {
		if _, ok := a.Acquire(h); ok {
			a.Done(h)
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	select {
	case <-removed:
		t.Fatal("Remove returned before in-flight use finished")
	case <-time.After(20 * time.Millisecond):
	}

	a.Done(h)
	v, ok := <-removed
	require.True(t, ok)
	require.Equal(t, 9, v)
	require.Equal(t, 0, a.Len())
}

func TestArena_RemoveContextCanceled(t *testing.T) {
	a := New[int]()
	h, _ := a.Insert(1)
	_, _ = a.Acquire(h)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Remove(ctx, h)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, a.Len())

	// the last in-flight use frees the closing slot
	a.Done(h)
	require.Equal(t, 0, a.Len())
}

func TestArena_ConcurrentAcquire(t *testing.T) {
	a := New[int]()
	h, _ := a.Insert(1)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := a.Acquire(h); ok {
				a.Done(h)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, uint32(0), a.InFlight(h))
}

func TestArena_Close(t *testing.T) {
	a := New[int]()
	_, _ = a.Insert(1)
	a.Close()

	_, err := a.Insert(2)
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 0, a.Len())
}

func TestArena_ReleasedHandleStaysStale(t *testing.T) {
	a := New[int]()
	old, err := a.Insert(0)
	require.NoError(t, err)
	_, err = a.TryRemove(old)
	require.NoError(t, err)

	// reuse the same slot well past 8 bits of generation
	var last uint32
	for i := 1; i <= 300; i++ {
		last, err = a.Insert(i)
		require.NoError(t, err)
		require.Equal(t, old&indexMask, last&indexMask)
		if i < 300 {
			_, err = a.TryRemove(last)
			require.NoError(t, err)
		}
	}
	require.NotEqual(t, old, last)

	_, ok := a.Get(old)
	require.False(t, ok)
	_, err = a.TryRemove(old)
	require.ErrorIs(t, err, ErrStale)

	v, ok := a.Get(last)
	require.True(t, ok)
	require.Equal(t, 300, v)
}

func TestArena_RetiresExhaustedSlot(t *testing.T) {
	a := New[int]()
	first, err := a.Insert(0)
	require.NoError(t, err)

	seen := map[uint32]bool{first: true}
	h := first
	for gen := 0; gen < MaxGeneration; gen++ {
		_, err = a.TryRemove(h)
		require.NoError(t, err)
		h, err = a.Insert(gen + 1)
		require.NoError(t, err)
		require.Equal(t, first&indexMask, h&indexMask)
		require.False(t, seen[h], "handle %#x handed out twice", h)
		seen[h] = true
	}

	// the last generation is used up; the slot is not reused
	_, err = a.TryRemove(h)
	require.NoError(t, err)
	next, err := a.Insert(-1)
	require.NoError(t, err)
	require.NotEqual(t, first&indexMask, next&indexMask)

	for old := range seen {
		_, ok := a.Get(old)
		require.False(t, ok)
	}
}
