package table

// VTimeInSec defines the time in the unit of second, measured from the start
// of the simulation.
type VTimeInSec float64

// TimeTeller can tell the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// Named is an object that has a name.
type Named interface {
	Name() string
}
