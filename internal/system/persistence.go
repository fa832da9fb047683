package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/petward/server/internal/core/system"
	"github.com/petward/server/internal/lease"
)

// PersistenceSystem periodically saves the lease records of every online
// owner so a crash loses at most one interval. Phase 4 (Persist).
type PersistenceSystem struct {
	mgr       *lease.Manager
	store     lease.Store
	log       *zap.Logger
	tickCount int
	interval  int // auto-save every N ticks
}

func NewPersistenceSystem(mgr *lease.Manager, store lease.Store, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		mgr:      mgr,
		store:    store,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.SaveAll()
}

// SaveAll persists every joined owner immediately. Called on graceful
// shutdown too. Returns the number of owners saved.
func (s *PersistenceSystem) SaveAll() int {
	count := 0
	for _, owner := range s.mgr.Owners() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := s.store.Save(ctx, owner, s.mgr.Records(owner))
		cancel()
		if err != nil {
			s.log.Error("自動儲存寵物租約失敗", zap.String("owner", owner.String()), zap.Error(err))
			continue
		}
		count++
	}
	if count > 0 {
		s.log.Debug("寵物租約自動儲存完成", zap.Int("owners", count))
	}
	return count
}
