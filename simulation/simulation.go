// Package simulation wires a table, its actors, and the observability
// backends together and runs them as one simulation.
package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/roundtablesim/roundtable/datarecording"
	"github.com/roundtablesim/roundtable/monitoring"
	"github.com/roundtablesim/roundtable/table"
	"github.com/roundtablesim/roundtable/tracing"
)

// A Simulation provides the services required to run a table of actors.
type Simulation struct {
	id        string
	startTime time.Time

	table  *table.Table
	actors []*table.Actor

	dataRecorder datarecording.DataRecorder
	tracer       *tracing.DBTracer
	monitor      *monitoring.Monitor
}

// ID returns the ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Table returns the table the actors contend on.
func (s *Simulation) Table() *table.Table {
	return s.table
}

// Actors returns all the actors in the simulation.
func (s *Simulation) Actors() []*table.Actor {
	return s.actors
}

// GetDataRecorder returns the data recorder used in the simulation.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation, or nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// CurrentTime returns the time elapsed since the simulation was built.
func (s *Simulation) CurrentTime() table.VTimeInSec {
	return table.VTimeInSec(time.Since(s.startTime).Seconds())
}

// Run starts one goroutine per actor and blocks until the context is
// cancelled or every actor has stopped. A faulting actor terminates alone;
// the others keep making progress until shutdown. Run returns the first
// actor fault, or nil after a clean shutdown.
func (s *Simulation) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error

	for _, a := range s.actors {
		wg.Add(1)
		go func(a *table.Actor) {
			defer wg.Done()

			if err := a.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	s.table.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

// Terminate terminates the simulation.
func (s *Simulation) Terminate() {
	if s.monitor != nil {
		s.monitor.StopServer()
	}

	s.dataRecorder.Close()
}

type grantEntry struct {
	Seat  int
	Count uint64
	Time  float64
}

type holderEntry struct {
	Resource int
	Holders  int
	Time     float64
}

// recordHook stores every grant and every post-release holder-count snapshot
// into the simulation's data recorder. Hooks run with the table lock held,
// so the grant counter needs no synchronization of its own.
type recordHook struct {
	sim        *Simulation
	grantCount uint64
}

func (h *recordHook) Func(ctx table.HookCtx) {
	now := float64(h.sim.CurrentTime())

	switch ctx.Pos {
	case table.HookPosGrant:
		info := ctx.Item.(table.GrantInfo)
		h.grantCount++
		h.sim.dataRecorder.InsertData("grants", grantEntry{
			Seat:  info.Seat,
			Count: h.grantCount,
			Time:  now,
		})
	case table.HookPosRelease:
		info := ctx.Item.(table.ReleaseInfo)
		for resource, holders := range info.Holders {
			h.sim.dataRecorder.InsertData("holder_counts", holderEntry{
				Resource: resource,
				Holders:  holders,
				Time:     now,
			})
		}
	}
}
