package table

// A Phase is the state an actor is in at a given moment.
type Phase int

// Enumeration of the phases an actor cycles through.
const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}
