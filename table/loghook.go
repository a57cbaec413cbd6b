package table

import (
	"fmt"
	"log"
	"strings"
)

// LogHookBase provides the common logic for hooks that write to a logger.
type LogHookBase struct {
	*log.Logger
}

// A PhaseLogger is a hook that prints seat phase transitions and the
// holder-count report that follows every release.
type PhaseLogger struct {
	LogHookBase
}

// NewPhaseLogger returns a PhaseLogger that writes into the logger.
func NewPhaseLogger(logger *log.Logger) *PhaseLogger {
	h := new(PhaseLogger)
	h.Logger = logger
	return h
}

// Func writes the transition information into the logger.
func (h *PhaseLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosWait:
		info := ctx.Item.(GrantInfo)
		h.Printf("seat %d is waiting", info.Seat)
	case HookPosGrant:
		info := ctx.Item.(GrantInfo)
		h.Printf("resources are with seat %d", info.Seat)
	case HookPosRelease:
		info := ctx.Item.(ReleaseInfo)
		h.Printf("seat %d returned its resources, holders: %s",
			info.Seat, formatHolders(info.Holders))
	}
}

func formatHolders(holders []int) string {
	parts := make([]string, len(holders))
	for r, c := range holders {
		parts[r] = fmt.Sprintf("%d:%d", r, c)
	}
	return strings.Join(parts, " ")
}
