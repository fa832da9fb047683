// Package lease keeps owners' companions simulated by renewing short-lived
// chunk tickets, and issues one-shot recovery tickets for companions found by
// discovery.
//
// Renewal always grants the current truth: the eligible set is recomputed
// from scratch and nothing is revoked. A companion that drops out of the set
// keeps its ticket until the TTL runs out.
package lease

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/core/sched"
	"github.com/petward/server/internal/world"
)

// Host is the slice of the host model renewal reads.
type Host interface {
	OwnerPartition(owner uuid.UUID) (string, bool)
	CompanionsOf(owner uuid.UUID) []companion.Companion
}

// Tickets is the host's chunk residency primitive.
type Tickets interface {
	Add(t world.Ticket)
	Remove(kind world.TicketKind, partition string, chunk companion.ChunkPos, id uuid.UUID) bool
	RemoveWhere(fn func(world.Ticket) bool) int
	All() []world.Ticket
}

// Lease is where a companion's ticket was last granted.
type Lease struct {
	Partition string
	Chunk     companion.ChunkPos
}

// Delta summarizes one renewal against the previous lease map.
type Delta struct {
	Added  int // newly eligible
	Kept   int // same chunk as last time
	Moved  int // eligible, different chunk
	Lapsed int // dropped from the set, ticket left to expire
}

func (d *Delta) add(o Delta) {
	d.Added += o.Added
	d.Kept += o.Kept
	d.Moved += o.Moved
	d.Lapsed += o.Lapsed
}

// Granted is the number of tickets the renewal issued.
func (d Delta) Granted() int { return d.Added + d.Kept + d.Moved }

type ownerState struct {
	leases            map[uuid.UUID]Lease
	firstRecoveryDone bool
}

type recoveryGrant struct {
	owner     uuid.UUID
	partition string
	chunk     companion.ChunkPos
	task      sched.TaskID
}

// Manager owns every owner's lease map and the pending recovery grants.
// Tick thread only.
type Manager struct {
	host    Host
	tickets Tickets
	queue   *sched.Queue
	ind     companion.Independence
	cfg     Config
	log     *zap.Logger

	owners   map[uuid.UUID]*ownerState
	recovery map[uuid.UUID]recoveryGrant
}

func NewManager(host Host, tickets Tickets, queue *sched.Queue, ind companion.Independence, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		host:     host,
		tickets:  tickets,
		queue:    queue,
		ind:      ind,
		cfg:      cfg.Clamped(),
		log:      log,
		owners:   make(map[uuid.UUID]*ownerState),
		recovery: make(map[uuid.UUID]recoveryGrant),
	}
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) state(owner uuid.UUID) *ownerState {
	st, ok := m.owners[owner]
	if !ok {
		st = &ownerState{leases: make(map[uuid.UUID]Lease)}
		m.owners[owner] = st
	}
	return st
}

// Eligible reports whether c qualifies for a lease in partition: owned by
// owner, tamed, in that partition, not sitting, leashed, riding or
// independent.
func (m *Manager) Eligible(owner uuid.UUID, partition string, c companion.Companion) bool {
	if o, ok := c.Owner(); !ok || o != owner {
		return false
	}
	if !c.Tamed() || c.Partition() != partition {
		return false
	}
	if c.Sitting() || c.Leashed() || c.InVehicle() {
		return false
	}
	return !companion.IsIndependent(m.ind, c)
}

// Renew grants a lease ticket to every eligible companion of owner at its
// current chunk and replaces the owner's lease map with the result. An owner
// who is not online gets nothing.
func (m *Manager) Renew(owner uuid.UUID) Delta {
	var d Delta
	partition, ok := m.host.OwnerPartition(owner)
	if !ok {
		return d
	}
	st := m.state(owner)
	next := make(map[uuid.UUID]Lease, len(st.leases))

	for _, c := range m.host.CompanionsOf(owner) {
		if !m.Eligible(owner, partition, c) {
			continue
		}
		id := c.ID()
		l := Lease{Partition: partition, Chunk: companion.ChunkOf(c.Pos())}
		m.grant(owner, id, l)
		next[id] = l

		switch prev, had := st.leases[id]; {
		case !had:
			d.Added++
		case prev == l:
			d.Kept++
		default:
			d.Moved++
		}
		m.confirm(id)
	}
	for id := range st.leases {
		if _, ok := next[id]; !ok {
			d.Lapsed++
		}
	}
	st.leases = next
	return d
}

// RenewAll renews every joined owner.
func (m *Manager) RenewAll() Delta {
	var total Delta
	for owner := range m.owners {
		total.add(m.Renew(owner))
	}
	return total
}

func (m *Manager) grant(owner, id uuid.UUID, l Lease) {
	m.tickets.Add(world.Ticket{
		Kind:      world.TicketLease,
		Owner:     owner,
		Companion: id,
		Partition: l.Partition,
		Chunk:     l.Chunk,
		Radius:    m.cfg.Radius,
		TTL:       m.cfg.TTL,
	})
}

// Join registers an online owner and eagerly re-grants every persisted lease
// before the companions are confirmed resident. Returns the grant count.
func (m *Manager) Join(owner uuid.UUID, rec Records) int {
	st := &ownerState{
		leases:            make(map[uuid.UUID]Lease, len(rec.Leases)),
		firstRecoveryDone: rec.FirstRecoveryDone,
	}
	for _, r := range rec.Leases {
		l := Lease{Partition: r.Partition, Chunk: r.Chunk}
		m.grant(owner, r.ID, l)
		st.leases[r.ID] = l
	}
	m.owners[owner] = st
	if len(rec.Leases) > 0 {
		m.log.Debug("重新授予寵物租約", zap.String("owner", owner.String()), zap.Int("leases", len(rec.Leases)))
	}
	return len(rec.Leases)
}

// Records snapshots the owner's leases for persistence.
func (m *Manager) Records(owner uuid.UUID) Records {
	st, ok := m.owners[owner]
	if !ok {
		return Records{}
	}
	r := Records{FirstRecoveryDone: st.firstRecoveryDone}
	for id, l := range st.leases {
		r.Leases = append(r.Leases, Record{ID: id, Partition: l.Partition, Chunk: l.Chunk})
	}
	r.Leases = r.sorted()
	return r
}

// Leave drops the owner's state and returns what should be persisted.
// Outstanding tickets expire on their own.
func (m *Manager) Leave(owner uuid.UUID) Records {
	r := m.Records(owner)
	delete(m.owners, owner)
	return r
}

// Joined reports whether owner is tracked.
func (m *Manager) Joined(owner uuid.UUID) bool {
	_, ok := m.owners[owner]
	return ok
}

// Owners returns the tracked owners in a stable order.
func (m *Manager) Owners() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m.owners))
	for o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Leases returns a copy of the owner's current lease map.
func (m *Manager) Leases(owner uuid.UUID) map[uuid.UUID]Lease {
	st, ok := m.owners[owner]
	if !ok {
		return nil
	}
	out := make(map[uuid.UUID]Lease, len(st.leases))
	for id, l := range st.leases {
		out[id] = l
	}
	return out
}

func (m *Manager) FirstRecoveryDone(owner uuid.UUID) bool {
	st, ok := m.owners[owner]
	return ok && st.firstRecoveryDone
}

func (m *Manager) MarkFirstRecoveryDone(owner uuid.UUID) {
	m.state(owner).firstRecoveryDone = true
}

// ---------- recovery ----------

// GrantRecovery keeps each snapshot's chunk loaded until CleanupDelay ticks
// pass or renewal confirms the companion, whichever comes first. A companion
// with a grant outstanding is re-granted at its new chunk.
func (m *Manager) GrantRecovery(owner uuid.UUID, snaps []companion.Snapshot) int {
	n := 0
	for _, s := range snaps {
		if s.Partition == "" {
			continue
		}
		id := s.ID
		m.release(id)
		m.tickets.Add(world.Ticket{
			Kind:      world.TicketRecovery,
			Owner:     owner,
			Companion: id,
			Partition: s.Partition,
			Chunk:     s.Chunk,
			Radius:    m.cfg.RecoveryRadius,
		})
		task := m.queue.After(m.cfg.CleanupDelay, func() {
			if _, ok := m.recovery[id]; ok {
				m.log.Debug("回收寵物區塊票證逾時", zap.String("pet", id.String()))
				m.dropRecovery(id)
			}
		})
		m.recovery[id] = recoveryGrant{owner: owner, partition: s.Partition, chunk: s.Chunk, task: task}
		n++
	}
	return n
}

// confirm ends the recovery grant of a companion that renewal now covers.
func (m *Manager) confirm(id uuid.UUID) {
	if _, ok := m.recovery[id]; ok {
		m.log.Debug("寵物已回到租約範圍，提前釋放區塊", zap.String("pet", id.String()))
		m.release(id)
	}
}

// release cancels the pending cleanup and drops the ticket.
func (m *Manager) release(id uuid.UUID) {
	g, ok := m.recovery[id]
	if !ok {
		return
	}
	m.queue.Cancel(g.task)
	m.dropRecovery(id)
}

func (m *Manager) dropRecovery(id uuid.UUID) {
	g := m.recovery[id]
	m.tickets.Remove(world.TicketRecovery, g.partition, g.chunk, id)
	delete(m.recovery, id)
}

// PendingRecovery counts the owner's outstanding recovery grants.
func (m *Manager) PendingRecovery(owner uuid.UUID) int {
	n := 0
	for _, g := range m.recovery {
		if g.owner == owner {
			n++
		}
	}
	return n
}

// ---------- admin ----------

// Cleanup releases every recovery ticket now. Returns how many went.
func (m *Manager) Cleanup() int {
	n := 0
	for id := range m.recovery {
		m.release(id)
		n++
	}
	n += m.tickets.RemoveWhere(func(t world.Ticket) bool { return t.Kind == world.TicketRecovery })
	return n
}

// Reset forgets everything about owner: leases, recovery grants, the
// first-recovery flag, and the tickets issued on its behalf. The owner stays
// joined if it was.
func (m *Manager) Reset(owner uuid.UUID) int {
	n := 0
	for id, g := range m.recovery {
		if g.owner == owner {
			m.release(id)
			n++
		}
	}
	n += m.tickets.RemoveWhere(func(t world.Ticket) bool { return t.Owner == owner })
	if _, ok := m.owners[owner]; ok {
		m.owners[owner] = &ownerState{leases: make(map[uuid.UUID]Lease)}
	}
	return n
}

// Tickets lists every active ticket for inspection.
func (m *Manager) Tickets() []world.Ticket { return m.tickets.All() }
