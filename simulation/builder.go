package simulation

import (
	"fmt"
	"log"
	"time"

	"github.com/rs/xid"

	"github.com/roundtablesim/roundtable/datarecording"
	"github.com/roundtablesim/roundtable/monitoring"
	"github.com/roundtablesim/roundtable/table"
	"github.com/roundtablesim/roundtable/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	numActors int
	seed      int64

	idleMin, idleMax     time.Duration
	activeMin, activeMax time.Duration

	monitorOn      bool
	monitorPort    int
	outputFileName string
	logger         *log.Logger
}

// MakeBuilder creates a new builder with the default configuration: five
// actors, one to three seconds for both the idle and the active period, and
// monitoring enabled.
func MakeBuilder() Builder {
	return Builder{
		numActors: 5,
		idleMin:   time.Second,
		idleMax:   3 * time.Second,
		activeMin: time.Second,
		activeMax: 3 * time.Second,
		monitorOn: true,
	}
}

// WithNumActors sets the number of actors around the table.
func (b Builder) WithNumActors(n int) Builder {
	b.numActors = n
	return b
}

// WithSeed sets the seed that derives every actor's duration sources,
// making a run reproducible.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithIdleRange sets the bounds of the randomized idle period.
func (b Builder) WithIdleRange(min, max time.Duration) Builder {
	b.idleMin = min
	b.idleMax = max
	return b
}

// WithActiveRange sets the bounds of the randomized active period.
func (b Builder) WithActiveRange(min, max time.Duration) Builder {
	b.activeMin = min
	b.activeMax = max
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithLogger makes the simulation report phase transitions to a logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation. A ring smaller than two actors is a
// configuration fault and fails the build.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	tbl, err := table.NewTable("Table", b.numActors)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:        xid.New().String(),
		table:     tbl,
		startTime: time.Now(),
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "roundtable_sim_" + s.id
	}
	s.dataRecorder = datarecording.NewRecorder(outputPath)

	s.tracer = tracing.NewDBTracer(s, s.dataRecorder)
	tracing.CollectTrace(tbl, s.tracer)

	s.dataRecorder.CreateTable("grants", grantEntry{})
	s.dataRecorder.CreateTable("holder_counts", holderEntry{})
	tbl.AcceptHook(&recordHook{sim: s})

	if b.logger != nil {
		tbl.AcceptHook(table.NewPhaseLogger(b.logger))
	}

	b.buildActors(s)
	for _, a := range s.actors {
		tracing.CollectTrace(a, s.tracer)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterTable(tbl)
		for _, a := range s.actors {
			s.monitor.RegisterActor(a)
		}
		s.monitor.StartServer()
	}

	return s, nil
}

func (b Builder) buildActors(s *Simulation) {
	for seat := 0; seat < b.numActors; seat++ {
		idle := table.NewUniformSource(
			b.idleMin, b.idleMax, b.seed+int64(seat))
		active := table.NewUniformSource(
			b.activeMin, b.activeMax, b.seed+int64(b.numActors+seat))

		actor := table.NewActor(
			fmt.Sprintf("Actor%d", seat), seat, s.table, idle, active)
		if b.logger != nil {
			actor.WithLogger(b.logger)
		}

		s.actors = append(s.actors, actor)
	}
}
