// Package sched holds commands that are due at a future output sample.
package sched

import (
	"errors"
	"math"
	"sync/atomic"
	"unsafe"
)

const (
	// Capacity is the number of item slots.
	Capacity = 256
	// TextMax is the longest command text an item can carry, in bytes.
	TextMax = 256
)

var (
	ErrFull    = errors.New("scheduler full")
	ErrTooLong = errors.New("deferred text too long")
)

// Slot states. An item moves free -> prepared -> ready -> consumed -> free.
const (
	stateFree int32 = iota
	statePrepared
	stateReady
	stateConsumed
)

type Item struct {
	state atomic.Int32
	when  int64
	voice int
	n     int
	text  [TextMax]byte
}

// Queue is a fixed array of items scanned linearly. Claiming a slot is a CAS
// on its state so the enqueuing side never waits on the draining side.
type Queue struct {
	items    [Capacity]Item
	earliest atomic.Int64
	pending  atomic.Int32
	dropped  atomic.Uint64
}

func New() *Queue {
	q := &Queue{}
	q.earliest.Store(math.MaxInt64)
	return q
}

// Enqueue stores text to be replayed against voice once the sample clock
// reaches when. A full queue or an oversized text drops the command; the drop
// is counted and reported as an error the caller may ignore.
func (q *Queue) Enqueue(when int64, voice int, text []byte) error {
	if len(text) > TextMax {
		q.dropped.Add(1)
		return ErrTooLong
	}
	for i := range q.items {
		it := &q.items[i]
		if !it.state.CompareAndSwap(stateFree, statePrepared) {
			continue
		}
		it.when = when
		it.voice = voice
		it.n = copy(it.text[:], text)
		q.pending.Add(1)
		it.state.Store(stateReady)
		q.lowerEarliest(when)
		return nil
	}
	q.dropped.Add(1)
	return ErrFull
}

func (q *Queue) lowerEarliest(when int64) {
	for {
		cur := q.earliest.Load()
		if when >= cur || q.earliest.CompareAndSwap(cur, when) {
			return
		}
	}
}

// Due reports whether any item may be ready at now. It is a single load and
// is meant to be called every sample.
func (q *Queue) Due(now int64) bool {
	return now >= q.earliest.Load()
}

// Drain replays every ready item whose timestamp is <= now, in slot order,
// and frees it afterwards. The text passed to fn aliases the slot and is only
// valid for the duration of the call. Items enqueued by fn are kept for a
// later sweep. Drain returns the number of items replayed.
func (q *Queue) Drain(now int64, fn func(voice int, text string)) int {
	if !q.Due(now) {
		return 0
	}
	q.earliest.Store(math.MaxInt64)
	fired := 0
	for i := range q.items {
		it := &q.items[i]
		if it.state.Load() != stateReady {
			continue
		}
		if it.when > now {
			q.lowerEarliest(it.when)
			continue
		}
		if !it.state.CompareAndSwap(stateReady, stateConsumed) {
			continue
		}
		if it.n > 0 {
			fn(it.voice, unsafe.String(&it.text[0], it.n))
		}
		it.n = 0
		q.pending.Add(-1)
		it.state.Store(stateFree)
		fired++
	}
	return fired
}

// Next returns the earliest pending timestamp, or false when nothing is queued.
func (q *Queue) Next() (int64, bool) {
	w := q.earliest.Load()
	return w, w != math.MaxInt64
}

func (q *Queue) Pending() int    { return int(q.pending.Load()) }
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Reset frees every slot. It must not race with Enqueue or Drain.
func (q *Queue) Reset() {
	for i := range q.items {
		q.items[i].n = 0
		q.items[i].state.Store(stateFree)
	}
	q.pending.Store(0)
	q.earliest.Store(math.MaxInt64)
}
