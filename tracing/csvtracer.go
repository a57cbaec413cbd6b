package tracing

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/roundtablesim/roundtable/table"
)

// A CSVTracer stores finished spans into a CSV file.
type CSVTracer struct {
	mu         sync.Mutex
	timeTeller table.TimeTeller
	path       string
	file       *os.File

	tracingSpans map[string]Span
	spans        []Span
	bufferSize   int
}

// NewCSVTracer creates a CSVTracer. The ".csv" suffix is appended to the
// path; an empty path generates a unique name.
func NewCSVTracer(timeTeller table.TimeTeller, path string) *CSVTracer {
	return &CSVTracer{
		timeTeller:   timeTeller,
		path:         path,
		tracingSpans: make(map[string]Span),
		bufferSize:   1000,
	}
}

// Init creates the tracing csv file. If the file already exists, Init
// panics.
func (t *CSVTracer) Init() {
	if t.path == "" {
		t.path = "roundtable_trace_" + xid.New().String()
	}

	filename := t.path + ".csv"
	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	file, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	t.file = file

	fmt.Fprintf(file, "ID, Seat, Kind, Where, Start, End\n")

	atexit.Register(func() {
		t.Flush()
		err := t.file.Close()
		if err != nil {
			panic(err)
		}
	})
}

// StartSpan marks the start of a span.
func (t *CSVTracer) StartSpan(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spanMustBeValid(span)

	span.Start = t.timeTeller.CurrentTime()
	t.tracingSpans[span.ID] = span
}

// EndSpan marks the end of a span and buffers it for writing.
func (t *CSVTracer) EndSpan(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingSpans[span.ID]
	if !ok {
		return
	}
	delete(t.tracingSpans, span.ID)

	original.End = t.timeTeller.CurrentTime()
	t.spans = append(t.spans, original)
	if len(t.spans) >= t.bufferSize {
		t.flushLocked()
	}
}

// Flush writes the buffered spans to the CSV file.
func (t *CSVTracer) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushLocked()
}

func (t *CSVTracer) flushLocked() {
	for _, span := range t.spans {
		fmt.Fprintf(t.file, "%s, %d, %s, %s, %.10f, %.10f\n",
			span.ID,
			span.Seat,
			span.Kind,
			span.Where,
			span.Start,
			span.End,
		)
	}

	t.spans = nil
}
