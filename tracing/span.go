package tracing

import "github.com/roundtablesim/roundtable/table"

// A Span is one contiguous stretch of time a seat spends in a phase.
type Span struct {
	ID    string           `json:"id"`
	Seat  int              `json:"seat"`
	Kind  string           `json:"kind"`
	Where string           `json:"where"`
	Start table.VTimeInSec `json:"start"`
	End   table.VTimeInSec `json:"end"`
}

// Span kinds emitted by the hook feeds. Waiting and active spans come from
// the table; idle spans come from the actor that owns the seat.
const (
	SpanKindIdle    = "idle"
	SpanKindWaiting = "waiting"
	SpanKindActive  = "active"
)

// A Tracer can collect phase spans. StartSpan receives a span without an end
// time; EndSpan receives the same span ID once the phase is over.
type Tracer interface {
	StartSpan(span Span)
	EndSpan(span Span)
}
