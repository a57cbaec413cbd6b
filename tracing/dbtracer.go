package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/roundtablesim/roundtable/datarecording"
	"github.com/roundtablesim/roundtable/table"
)

type spanTableEntry struct {
	ID        string
	Seat      int
	Kind      string
	Location  string
	StartTime float64
	EndTime   float64
}

// A DBTracer stamps spans with the current simulation time and stores the
// finished ones into a DataRecorder backend, in the trace_spans table.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller table.TimeTeller
	backend    datarecording.DataRecorder

	tracingSpans map[string]Span
}

// NewDBTracer creates a DBTracer and prepares its backend table.
func NewDBTracer(
	timeTeller table.TimeTeller,
	backend datarecording.DataRecorder,
) *DBTracer {
	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		tracingSpans: make(map[string]Span),
	}

	backend.CreateTable("trace_spans", spanTableEntry{})

	atexit.Register(func() { backend.Flush() })

	return t
}

// StartSpan marks the start of a span.
func (t *DBTracer) StartSpan(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spanMustBeValid(span)

	span.Start = t.timeTeller.CurrentTime()
	t.tracingSpans[span.ID] = span
}

// EndSpan marks the end of a span and hands it to the backend.
func (t *DBTracer) EndSpan(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingSpans[span.ID]
	if !ok {
		return
	}
	delete(t.tracingSpans, span.ID)

	original.End = t.timeTeller.CurrentTime()
	t.backend.InsertData("trace_spans", spanTableEntry{
		ID:        original.ID,
		Seat:      original.Seat,
		Kind:      original.Kind,
		Location:  original.Where,
		StartTime: float64(original.Start),
		EndTime:   float64(original.End),
	})
}
