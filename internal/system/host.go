package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/petward/server/internal/core/system"
	"github.com/petward/server/internal/world"
)

// HostSystem ages chunk tickets and glow timers. Phase 3 (PostUpdate).
type HostSystem struct {
	world *world.State
	log   *zap.Logger
}

func NewHostSystem(ws *world.State, log *zap.Logger) *HostSystem {
	return &HostSystem{world: ws, log: log}
}

func (s *HostSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *HostSystem) Update(_ time.Duration) {
	if n := s.world.Tick(); n > 0 {
		s.log.Debug("區塊票證到期", zap.Int("expired", n))
	}
}
