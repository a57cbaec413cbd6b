package table

import (
	"context"
	"errors"
	"log"
	"time"
)

// HookPosIdleStart is triggered when an actor begins an idle period.
var HookPosIdleStart = &HookPos{Name: "IdleStart"}

// HookPosIdleEnd is triggered when an actor ends an idle period.
var HookPosIdleEnd = &HookPos{Name: "IdleEnd"}

// IdleInfo is the hook item attached to HookPosIdleStart and HookPosIdleEnd.
type IdleInfo struct {
	Seat int
}

// An Actor is one independently scheduled task at the table. It cycles
// through an unconstrained idle period, an Acquire call, a constrained active
// period, and a Release call, until the simulation is cancelled. The idle
// period is bracketed by the actor's own hooks; the waiting and active
// periods are observable through the table's hooks.
type Actor struct {
	HookableBase

	name  string
	seat  int
	table *Table

	idle   DurationSource
	active DurationSource

	logger *log.Logger
}

// NewActor creates an Actor bound to a seat of a table. The idle and active
// sources control how long the actor spends outside and inside its active
// phase.
func NewActor(
	name string,
	seat int,
	t *Table,
	idle DurationSource,
	active DurationSource,
) *Actor {
	return &Actor{
		name:   name,
		seat:   seat,
		table:  t,
		idle:   idle,
		active: active,
	}
}

// WithLogger makes the actor report its idle and active periods to a logger.
func (a *Actor) WithLogger(logger *log.Logger) *Actor {
	a.logger = logger
	return a
}

// Name returns the name of the actor.
func (a *Actor) Name() string {
	return a.name
}

// Seat returns the seat the actor occupies.
func (a *Actor) Seat() int {
	return a.seat
}

// Run executes the actor loop until the context is cancelled or the table is
// closed, both of which return nil. An invalid-transition fault terminates
// the loop with an error; the table state is unaffected by the fault.
func (a *Actor) Run(ctx context.Context) error {
	for {
		d := a.idle.Next()
		a.logf("%s idle for %s", a.name, d)

		a.InvokeHook(HookCtx{
			Domain: a,
			Pos:    HookPosIdleStart,
			Item:   IdleInfo{Seat: a.seat},
		})
		slept := sleep(ctx, d)
		a.InvokeHook(HookCtx{
			Domain: a,
			Pos:    HookPosIdleEnd,
			Item:   IdleInfo{Seat: a.seat},
		})
		if !slept {
			return nil
		}

		err := a.table.Acquire(a.seat)
		if errors.Is(err, ErrTableClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		d = a.active.Next()
		a.logf("%s active for %s", a.name, d)
		if !sleep(ctx, d) {
			// Cancelled mid-cycle. Returning the resources is not required
			// on shutdown, but it keeps the final snapshot consistent.
			_ = a.table.Release(a.seat)
			return nil
		}

		if err := a.table.Release(a.seat); err != nil {
			return err
		}
	}
}

func (a *Actor) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// sleep blocks for d or until the context is cancelled. It reports whether
// the full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
