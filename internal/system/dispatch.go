package system

import (
	"time"

	"github.com/petward/server/internal/core/event"
	"github.com/petward/server/internal/core/sched"
	coresys "github.com/petward/server/internal/core/system"
)

// DispatchSystem runs callbacks posted by worker goroutines and delivers the
// previous tick's events. Phase 1 (PreUpdate).
type DispatchSystem struct {
	queue *sched.Queue
	bus   *event.Bus
}

func NewDispatchSystem(queue *sched.Queue, bus *event.Bus) *DispatchSystem {
	return &DispatchSystem{queue: queue, bus: bus}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *DispatchSystem) Update(_ time.Duration) {
	s.queue.Tick()
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
