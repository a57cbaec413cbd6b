// Package tracing converts the hook feed of a table into phase spans and
// stores them through pluggable backends.
package tracing

import (
	"fmt"
	"reflect"

	"github.com/rs/xid"

	"github.com/roundtablesim/roundtable/table"
)

// NamedHookable represents something that both has a name and can be hooked
type NamedHookable interface {
	table.Named
	table.Hookable
}

// CollectTrace lets the tracer collect spans from a table's hook feed.
// Attaching the same tracer to the same domain twice panics.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*spanHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	h := &spanHook{
		t:       tracer,
		where:   domain.Name(),
		idle:    make(map[int]Span),
		waiting: make(map[int]Span),
		active:  make(map[int]Span),
	}
	domain.AcceptHook(h)
}

// A spanHook translates hook events into span start/end pairs. Table events
// arrive with the table lock held and actor events arrive from the actor's
// own goroutine, so a single hook never sees concurrent invocations and needs
// no locking of its own.
type spanHook struct {
	t     Tracer
	where string

	idle    map[int]Span
	waiting map[int]Span
	active  map[int]Span
}

// Func opens a waiting span on a wait event, converts it into an active span
// on a grant, and closes the active span on a release. Actor-side idle events
// bracket idle spans the same way.
func (h *spanHook) Func(ctx table.HookCtx) {
	switch ctx.Pos {
	case table.HookPosIdleStart:
		seat := ctx.Item.(table.IdleInfo).Seat
		span := Span{
			ID:    xid.New().String(),
			Seat:  seat,
			Kind:  SpanKindIdle,
			Where: h.where,
		}
		h.idle[seat] = span
		h.t.StartSpan(span)
	case table.HookPosIdleEnd:
		seat := ctx.Item.(table.IdleInfo).Seat
		if idle, ok := h.idle[seat]; ok {
			h.t.EndSpan(idle)
			delete(h.idle, seat)
		}
	case table.HookPosWait:
		seat := ctx.Item.(table.GrantInfo).Seat
		span := Span{
			ID:    xid.New().String(),
			Seat:  seat,
			Kind:  SpanKindWaiting,
			Where: h.where,
		}
		h.waiting[seat] = span
		h.t.StartSpan(span)
	case table.HookPosGrant:
		seat := ctx.Item.(table.GrantInfo).Seat
		if waiting, ok := h.waiting[seat]; ok {
			h.t.EndSpan(waiting)
			delete(h.waiting, seat)
		}
		span := Span{
			ID:    xid.New().String(),
			Seat:  seat,
			Kind:  SpanKindActive,
			Where: h.where,
		}
		h.active[seat] = span
		h.t.StartSpan(span)
	case table.HookPosRelease:
		seat := ctx.Item.(table.ReleaseInfo).Seat
		if active, ok := h.active[seat]; ok {
			h.t.EndSpan(active)
			delete(h.active, seat)
		}
	}
}

func spanMustBeValid(span Span) {
	if span.ID == "" {
		panic("span ID must be set")
	}

	if span.Kind == "" {
		panic("span kind must be set")
	}

	if span.Where == "" {
		panic("span location must be set")
	}
}
