package table

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when Acquire or Release is called on an
// actor whose current phase does not permit the transition. The fault is
// detected before the phase vector is touched, so the shared state stays
// consistent.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ErrTableClosed is returned by Acquire after the table has been closed.
var ErrTableClosed = errors.New("table closed")

// A ConfigError reports an invalid table configuration.
type ConfigError struct {
	Seats int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf(
		"a table needs at least 2 seats to contend over, got %d", e.Seats)
}
