// Package monitoring turns a running simulation into a web server that
// exposes live actor phases and resource holder counts.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/roundtablesim/roundtable/table"
)

// Monitor allows external observation of a running simulation over HTTP.
type Monitor struct {
	tbl        *table.Table
	actors     []*table.Actor
	portNumber int
	listener   net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterTable registers the table to be monitored.
func (m *Monitor) RegisterTable(t *table.Table) {
	m.tbl = t
}

// RegisterActor registers an actor to be monitored.
func (m *Monitor) RegisterActor(a *table.Actor) {
	m.actors = append(m.actors, a)
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/phases", m.listPhases)
	r.HandleFunc("/api/holders", m.listHolders)
	r.HandleFunc("/api/grants", m.listGrants)
	r.HandleFunc("/api/list_actors", m.listActors)
	r.HandleFunc("/api/actor/{name}", m.listActorDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener

	fmt.Fprintf(
		os.Stderr,
		"Monitoring simulation with http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		// Serve returns once StopServer closes the listener.
		_ = http.Serve(listener, r)
	}()
}

// StopServer stops serving monitoring requests.
func (m *Monitor) StopServer() {
	if m.listener == nil {
		return
	}

	listener := m.listener
	m.listener = nil
	_ = listener.Close()
}

// Port returns the port the monitor listens on, or 0 when it is not serving.
func (m *Monitor) Port() int {
	if m.listener == nil {
		return 0
	}

	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *Monitor) listPhases(w http.ResponseWriter, _ *http.Request) {
	phases := m.tbl.Phases()

	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.String()
	}

	bytes, err := json.Marshal(names)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listHolders(w http.ResponseWriter, _ *http.Request) {
	bytes, err := json.Marshal(m.tbl.HolderCounts())
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listGrants(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"grants\":%d}", m.tbl.Grants())
}

func (m *Monitor) listActors(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, a := range m.actors {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", a.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listActorDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	actor := m.findActorOr404(w, name)
	if actor == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(actor)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) findActorOr404(
	w http.ResponseWriter,
	name string,
) *table.Actor {
	var actor *table.Actor
	for _, a := range m.actors {
		if a.Name() == name {
			actor = a
		}
	}

	if actor == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Actor not found"))
		dieOnErr(err)
	}

	return actor
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
