package table

import (
	"fmt"
	"sync"
)

// GrantInfo is the hook item attached to HookPosWait and HookPosGrant.
type GrantInfo struct {
	Seat int
}

// ReleaseInfo is the hook item attached to HookPosRelease. Holders is the
// per-resource holder-count snapshot taken right after the seat returned its
// resources, before the neighbors are re-evaluated.
type ReleaseInfo struct {
	Seat    int
	Holders []int
}

// A Table arbitrates access to a ring of pairwise-shared resources. Seat i
// needs resource i and resource (i+1)%N at the same time to enter its active
// phase, and no resource can be held by both of its adjacent seats at once.
//
// The table never locks individual resources. Availability is derived
// entirely from the phases of the two seats adjacent to a resource, so the
// only shared state is the phase vector, guarded by a single mutex with one
// condition variable per seat.
//
// Hooks are invoked while the table lock is held. A hook must not call back
// into the table.
type Table struct {
	HookableBase

	name string

	mu     sync.Mutex
	conds  []*sync.Cond
	phase  []Phase
	grants uint64
	closed bool
}

// NewTable creates a Table with the given number of seats, all idle. A ring
// needs at least two seats to exhibit contention.
func NewTable(name string, seats int) (*Table, error) {
	if seats < 2 {
		return nil, &ConfigError{Seats: seats}
	}

	t := &Table{
		name:  name,
		phase: make([]Phase, seats),
		conds: make([]*sync.Cond, seats),
	}
	for i := range t.conds {
		t.conds[i] = sync.NewCond(&t.mu)
	}

	return t, nil
}

// Name returns the name of the table.
func (t *Table) Name() string {
	return t.name
}

// Seats returns the number of seats around the table.
func (t *Table) Seats() int {
	return len(t.phase)
}

// LeftResource returns the index of the resource on the left of a seat.
func (t *Table) LeftResource(seat int) int {
	return seat
}

// RightResource returns the index of the resource on the right of a seat.
func (t *Table) RightResource(seat int) int {
	return (seat + 1) % len(t.phase)
}

func (t *Table) leftNeighbor(seat int) int {
	n := len(t.phase)
	return (seat + n - 1) % n
}

func (t *Table) rightNeighbor(seat int) int {
	return (seat + 1) % len(t.phase)
}

// Acquire blocks the calling actor until both resources adjacent to the seat
// are free and assigned to it. On a nil return the seat is active and no
// adjacent seat is. Acquire on a seat that is not idle is an invalid
// transition and leaves the phase vector untouched. Acquire returns
// ErrTableClosed if the table is closed before or while the seat waits.
func (t *Table) Acquire(seat int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seatMustBeValid(seat)

	if t.closed {
		return ErrTableClosed
	}

	if t.phase[seat] != PhaseIdle {
		return fmt.Errorf("acquire on seat %d in phase %s: %w",
			seat, t.phase[seat], ErrInvalidTransition)
	}

	t.phase[seat] = PhaseWaiting
	t.InvokeHook(HookCtx{
		Domain: t,
		Pos:    HookPosWait,
		Item:   GrantInfo{Seat: seat},
	})

	t.tryGrant(seat)

	for t.phase[seat] != PhaseActive && !t.closed {
		t.conds[seat].Wait()
	}

	if t.phase[seat] != PhaseActive {
		t.phase[seat] = PhaseIdle
		return ErrTableClosed
	}

	return nil
}

// Release returns both resources of an active seat and re-evaluates whether
// either neighbor can now proceed. Release on a seat that is not active is an
// invalid transition and leaves the phase vector untouched.
func (t *Table) Release(seat int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seatMustBeValid(seat)

	if t.phase[seat] != PhaseActive {
		return fmt.Errorf("release on seat %d in phase %s: %w",
			seat, t.phase[seat], ErrInvalidTransition)
	}

	t.phase[seat] = PhaseIdle
	t.InvokeHook(HookCtx{
		Domain: t,
		Pos:    HookPosRelease,
		Item: ReleaseInfo{
			Seat:    seat,
			Holders: t.holderCountsLocked(),
		},
	})

	t.tryGrant(t.leftNeighbor(seat))
	t.tryGrant(t.rightNeighbor(seat))

	return nil
}

// tryGrant is the single safety check in the system. It must run with the
// table lock held so that it always sees the live phase vector. A waiting
// seat is granted only when neither neighbor is active.
func (t *Table) tryGrant(seat int) {
	if t.phase[seat] != PhaseWaiting {
		return
	}

	if t.phase[t.leftNeighbor(seat)] == PhaseActive {
		return
	}

	if t.phase[t.rightNeighbor(seat)] == PhaseActive {
		return
	}

	t.phase[seat] = PhaseActive
	t.grants++
	t.conds[seat].Signal()
	t.InvokeHook(HookCtx{
		Domain: t,
		Pos:    HookPosGrant,
		Item:   GrantInfo{Seat: seat},
	})
}

// PhaseOf returns the current phase of a seat.
func (t *Table) PhaseOf(seat int) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seatMustBeValid(seat)

	return t.phase[seat]
}

// Phases returns a copy of the phase vector.
func (t *Table) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	phases := make([]Phase, len(t.phase))
	copy(phases, t.phase)

	return phases
}

// HolderCount returns the number of seats currently holding a resource.
// Resource r can only be referenced by seat r and seat (r-1)%N, so the count
// never exceeds 1 while the adjacency invariant holds.
func (t *Table) HolderCount(resource int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seatMustBeValid(resource)

	return t.holderCountLocked(resource)
}

// HolderCounts returns the holder count of every resource.
func (t *Table) HolderCounts() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.holderCountsLocked()
}

func (t *Table) holderCountLocked(resource int) int {
	count := 0
	if t.phase[resource] == PhaseActive {
		count++
	}
	if t.phase[t.leftNeighbor(resource)] == PhaseActive {
		count++
	}
	return count
}

func (t *Table) holderCountsLocked() []int {
	counts := make([]int, len(t.phase))
	for r := range counts {
		counts[r] = t.holderCountLocked(r)
	}
	return counts
}

// Grants returns the total number of grants issued so far.
func (t *Table) Grants() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.grants
}

// Close marks the table closed and wakes every waiting seat. Blocked Acquire
// calls return ErrTableClosed. Close is idempotent.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, c := range t.conds {
		c.Broadcast()
	}
}

func (t *Table) seatMustBeValid(seat int) {
	if seat < 0 || seat >= len(t.phase) {
		panic(fmt.Sprintf("seat %d out of range [0, %d)", seat, len(t.phase)))
	}
}
