package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain console commands
	PhasePreUpdate               // 1: run posted callbacks, dispatch last tick's events
	PhaseUpdate                  // 2: lease renewal
	PhasePostUpdate              // 3: host upkeep (ticket expiry, glow timers)
	PhasePersist                 // 4: periodic lease record saves
)

// System is the interface every tick-loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
