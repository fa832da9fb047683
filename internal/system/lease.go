package system

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/core/event"
	coresys "github.com/petward/server/internal/core/system"
	"github.com/petward/server/internal/lease"
)

const storeTimeout = 3 * time.Second

// LeaseSystem renews every joined owner's leases on a fixed real-time
// cadence, independent of tick rate and companion count. It also loads lease
// records on join and stores them on leave. Phase 2 (Update).
type LeaseSystem struct {
	mgr      *lease.Manager
	store    lease.Store
	log      *zap.Logger
	interval time.Duration
	acc      time.Duration

	// onFirstJoin fires after an owner whose first recovery never ran joins.
	onFirstJoin func(owner uuid.UUID)

	last lease.Delta
}

func NewLeaseSystem(bus *event.Bus, mgr *lease.Manager, store lease.Store, log *zap.Logger, onFirstJoin func(uuid.UUID)) *LeaseSystem {
	s := &LeaseSystem{
		mgr:         mgr,
		store:       store,
		log:         log,
		interval:    mgr.Config().RenewInterval,
		onFirstJoin: onFirstJoin,
	}
	event.Subscribe(bus, s.joined)
	event.Subscribe(bus, s.left)
	event.Subscribe(bus, s.moved)
	return s
}

func (s *LeaseSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *LeaseSystem) Update(dt time.Duration) {
	s.acc += dt
	if s.acc < s.interval {
		return
	}
	s.acc -= s.interval
	if s.acc > s.interval {
		s.acc = 0 // 落後太多時不追補
	}
	s.last = s.mgr.RenewAll()
}

// LastDelta returns the totals of the most recent renewal.
func (s *LeaseSystem) LastDelta() lease.Delta { return s.last }

func (s *LeaseSystem) joined(ev event.OwnerJoined) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec, err := s.store.Load(ctx, ev.Owner)
	if err != nil {
		s.log.Warn("載入寵物租約失敗", zap.String("owner", ev.Name), zap.Error(err))
		rec = lease.Records{}
	}
	n := s.mgr.Join(ev.Owner, rec)
	s.log.Info("玩家寵物租約已載入", zap.String("owner", ev.Name), zap.Int("leases", n))

	if !rec.FirstRecoveryDone && s.onFirstJoin != nil {
		s.onFirstJoin(ev.Owner)
	}
}

func (s *LeaseSystem) left(ev event.OwnerLeft) {
	if !s.mgr.Joined(ev.Owner) {
		return
	}
	rec := s.mgr.Leave(ev.Owner)
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, ev.Owner, rec); err != nil {
		s.log.Error("儲存寵物租約失敗", zap.String("owner", ev.Name), zap.Error(err))
	}
}

// moved renews at once so leases follow the owner into the new dimension
// instead of waiting for the next interval.
func (s *LeaseSystem) moved(ev event.PartitionChanged) {
	if !s.mgr.Joined(ev.Owner) {
		return
	}
	d := s.mgr.Renew(ev.Owner)
	s.log.Debug("玩家切換維度，立即更新租約",
		zap.String("owner", ev.Owner.String()),
		zap.String("from", ev.From),
		zap.String("to", ev.To),
		zap.Int("granted", d.Granted()),
		zap.Int("lapsed", d.Lapsed))
}
