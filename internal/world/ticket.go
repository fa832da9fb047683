package world

import (
	"sort"

	"github.com/google/uuid"

	"github.com/petward/server/internal/companion"
)

// TicketKind distinguishes the two chunk-loading ticket flavours.
type TicketKind int

const (
	TicketLease    TicketKind = iota + 1 // short TTL, refreshed by renewal
	TicketRecovery                       // no TTL, released explicitly
)

func (k TicketKind) String() string {
	switch k {
	case TicketLease:
		return "lease"
	case TicketRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Ticket keeps the chunks within Radius of Chunk simulated.
type Ticket struct {
	Kind      TicketKind
	Owner     uuid.UUID
	Companion uuid.UUID
	Partition string
	Chunk     companion.ChunkPos
	Radius    int
	TTL       int // remaining ticks; 0 = until removed
}

// Covers reports whether the ticket keeps chunk c of partition p loaded.
func (t Ticket) Covers(p string, c companion.ChunkPos) bool {
	if t.Partition != p {
		return false
	}
	return abs(c.X-t.Chunk.X) <= t.Radius && abs(c.Z-t.Chunk.Z) <= t.Radius
}

type ticketKey struct {
	kind      TicketKind
	partition string
	chunk     companion.ChunkPos
	companion uuid.UUID
}

// TicketManager is the host's chunk residency primitive. Adding a ticket with
// the same kind, partition, chunk and companion refreshes it in place.
type TicketManager struct {
	tickets map[ticketKey]*Ticket
}

func NewTicketManager() *TicketManager {
	return &TicketManager{tickets: make(map[ticketKey]*Ticket)}
}

func keyOf(t Ticket) ticketKey {
	return ticketKey{kind: t.Kind, partition: t.Partition, chunk: t.Chunk, companion: t.Companion}
}

// Add inserts or refreshes a ticket.
func (m *TicketManager) Add(t Ticket) {
	if t.Radius < 0 {
		t.Radius = 0
	}
	if t.Kind == TicketRecovery {
		t.TTL = 0
	}
	m.tickets[keyOf(t)] = &t
}

// Remove drops one ticket. Returns false when it did not exist.
func (m *TicketManager) Remove(kind TicketKind, partition string, chunk companion.ChunkPos, id uuid.UUID) bool {
	k := ticketKey{kind: kind, partition: partition, chunk: chunk, companion: id}
	if _, ok := m.tickets[k]; !ok {
		return false
	}
	delete(m.tickets, k)
	return true
}

// RemoveWhere drops every ticket matching fn and returns how many went.
func (m *TicketManager) RemoveWhere(fn func(Ticket) bool) int {
	n := 0
	for k, t := range m.tickets {
		if fn(*t) {
			delete(m.tickets, k)
			n++
		}
	}
	return n
}

// Tick ages lease tickets and drops the expired ones.
func (m *TicketManager) Tick() (expired int) {
	for k, t := range m.tickets {
		if t.TTL == 0 {
			continue
		}
		t.TTL--
		if t.TTL <= 0 {
			delete(m.tickets, k)
			expired++
		}
	}
	return expired
}

// All returns a sorted copy of every active ticket.
func (m *TicketManager) All() []Ticket {
	out := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		if a.Chunk != b.Chunk {
			if a.Chunk.X != b.Chunk.X {
				return a.Chunk.X < b.Chunk.X
			}
			return a.Chunk.Z < b.Chunk.Z
		}
		return a.Companion.String() < b.Companion.String()
	})
	return out
}

func (m *TicketManager) Count(kind TicketKind) int {
	n := 0
	for _, t := range m.tickets {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func (m *TicketManager) Len() int { return len(m.tickets) }

// Loaded reports whether any ticket keeps the chunk simulated.
func (m *TicketManager) Loaded(partition string, c companion.ChunkPos) bool {
	for _, t := range m.tickets {
		if t.Covers(partition, c) {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
