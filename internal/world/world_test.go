package world

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/companion"
)

type denyAll struct{ owner uuid.UUID }

func (d denyAll) Suppress(owner uuid.UUID, _ companion.Target) bool { return owner == d.owner }

func TestTicketTTLAndRefresh(t *testing.T) {
	m := NewTicketManager()
	id := uuid.New()
	base := Ticket{Kind: TicketLease, Companion: id, Partition: "minecraft:overworld", Chunk: companion.ChunkPos{X: 1, Z: 2}, Radius: 2, TTL: 2}
	m.Add(base)

	assert.True(t, m.Loaded("minecraft:overworld", companion.ChunkPos{X: 3, Z: 0}))
	assert.False(t, m.Loaded("minecraft:overworld", companion.ChunkPos{X: 4, Z: 2}))
	assert.False(t, m.Loaded("minecraft:the_nether", companion.ChunkPos{X: 1, Z: 2}))

	assert.Zero(t, m.Tick())
	m.Add(base) // refresh
	assert.Zero(t, m.Tick())
	assert.Equal(t, 1, m.Tick())
	assert.Zero(t, m.Len())
}

func TestRecoveryTicketsNeverExpire(t *testing.T) {
	m := NewTicketManager()
	m.Add(Ticket{Kind: TicketRecovery, Companion: uuid.New(), Partition: "p", TTL: 5})
	for i := 0; i < 100; i++ {
		m.Tick()
	}
	assert.Equal(t, 1, m.Count(TicketRecovery))

	n := m.RemoveWhere(func(t Ticket) bool { return t.Kind == TicketRecovery })
	assert.Equal(t, 1, n)
	assert.Zero(t, m.Len())
}

func TestRemoveTicket(t *testing.T) {
	m := NewTicketManager()
	id := uuid.New()
	c := companion.ChunkPos{X: -1, Z: 7}
	m.Add(Ticket{Kind: TicketLease, Companion: id, Partition: "p", Chunk: c, TTL: 10})
	assert.False(t, m.Remove(TicketRecovery, "p", c, id))
	assert.True(t, m.Remove(TicketLease, "p", c, id))
	assert.False(t, m.Remove(TicketLease, "p", c, id))
}

func TestStatePetsAndTargeting(t *testing.T) {
	s := NewState()
	owner := uuid.New()
	var inbox []string
	s.AddPlayer(NewPlayer(owner, "Alice", "minecraft:overworld", companion.Vec3{}, func(m string) { inbox = append(inbox, m) }))

	require.NotNil(t, s.PlayerByName("alice"))
	part, ok := s.OwnerPartition(owner)
	require.True(t, ok)
	assert.Equal(t, "minecraft:overworld", part)

	wolf := &Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", OwnerID: owner, IsTamed: true, Dim: part}
	stray := &Pet{UUID: uuid.New(), TypeTag: "minecraft:cat"}
	s.AddPet(wolf)
	s.AddPet(stray)
	assert.Len(t, s.PetsOf(owner), 1)
	assert.Empty(t, s.PetsOf(uuid.Nil))

	target := companion.Target{ID: uuid.New(), Type: "minecraft:zombie"}
	assert.True(t, s.TrySetTarget(wolf, target))

	s.SetTargetFilter(denyAll{owner: owner})
	wolf.Target = uuid.Nil
	assert.False(t, s.TrySetTarget(wolf, target))
	assert.Equal(t, uuid.Nil, wolf.Target)
	assert.True(t, s.TrySetTarget(stray, target), "untamed pets are never filtered")

	s.GetPlayer(owner).Send("hi")
	assert.Equal(t, []string{"hi"}, inbox)
	assert.NotNil(t, s.RemovePlayer(owner))
	assert.Nil(t, s.PlayerByName("alice"))
}

func TestGlowCountsDown(t *testing.T) {
	s := NewState()
	p := &Pet{UUID: uuid.New(), GlowTicks: 2}
	s.AddPet(p)
	s.Tick()
	assert.True(t, p.Glowing())
	s.Tick()
	assert.False(t, p.Glowing())
}

func TestSaveAll(t *testing.T) {
	s := NewState()
	assert.NoError(t, s.SaveAll())
	calls := 0
	s.SetSaver(func() error { calls++; return nil })
	assert.NoError(t, s.SaveAll())
	assert.Equal(t, 1, calls)
}
