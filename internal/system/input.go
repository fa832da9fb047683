package system

import (
	"time"

	coresys "github.com/petward/server/internal/core/system"
)

// InputSystem drains console lines read by the stdin goroutine and hands
// them to the command handler. Phase 0 (Input).
type InputSystem struct {
	lines      <-chan string
	handle     func(line string)
	maxPerTick int
}

func NewInputSystem(lines <-chan string, handle func(string), maxPerTick int) *InputSystem {
	if maxPerTick < 1 {
		maxPerTick = 1
	}
	return &InputSystem{lines: lines, handle: handle, maxPerTick: maxPerTick}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			s.handle(line)
		default:
			return
		}
	}
}
