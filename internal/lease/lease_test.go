package lease

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/core/sched"
	"github.com/petward/server/internal/nbt"
	"github.com/petward/server/internal/world"
)

const overworld = "minecraft:overworld"

type fixture struct {
	state *world.State
	queue *sched.Queue
	mgr   *Manager
	owner uuid.UUID
}

func newFixture(t *testing.T, ind companion.Independence) *fixture {
	t.Helper()
	f := &fixture{
		state: world.NewState(),
		queue: sched.NewQueue(nil),
		owner: uuid.New(),
	}
	f.state.AddPlayer(world.NewPlayer(f.owner, "owner", overworld, companion.Vec3{}, nil))
	cfg := DefaultConfig()
	cfg.TTL = 5
	cfg.CleanupDelay = 3
	f.mgr = NewManager(f.state, f.state.Tickets, f.queue, ind, cfg, nil)
	return f
}

func (f *fixture) pet(mut func(p *world.Pet)) *world.Pet {
	p := &world.Pet{
		UUID:     uuid.New(),
		TypeTag:  "minecraft:wolf",
		OwnerID:  f.owner,
		IsTamed:  true,
		Position: companion.Vec3{X: 33, Y: 64, Z: -1},
		Dim:      overworld,
	}
	if mut != nil {
		mut(p)
	}
	f.state.AddPet(p)
	return p
}

func TestRenewGrantsOnlyEligible(t *testing.T) {
	f := newFixture(t, companion.TagIndependence{})
	ok := f.pet(nil)
	f.pet(func(p *world.Pet) { p.IsSitting = true })
	f.pet(func(p *world.Pet) { p.IsLeashed = true })
	f.pet(func(p *world.Pet) { p.Riding = true })
	f.pet(func(p *world.Pet) { p.IsTamed = false })
	f.pet(func(p *world.Pet) { p.Dim = "minecraft:the_nether" })
	f.pet(func(p *world.Pet) { p.OwnerID = uuid.New() })
	f.pet(func(p *world.Pet) { p.Data = nbt.Compound{"AllowedToFollow": int8(0)} })

	d := f.mgr.Renew(f.owner)
	assert.Equal(t, Delta{Added: 1}, d)

	leases := f.mgr.Leases(f.owner)
	require.Len(t, leases, 1)
	assert.Equal(t, Lease{Partition: overworld, Chunk: companion.ChunkPos{X: 2, Z: -1}}, leases[ok.UUID])

	all := f.state.Tickets.All()
	require.Len(t, all, 1)
	assert.Equal(t, world.TicketLease, all[0].Kind)
	assert.Equal(t, ok.UUID, all[0].Companion)
	assert.Equal(t, 5, all[0].TTL)
	assert.Equal(t, 1, all[0].Radius)
}

func TestIndependenceIgnoredWithoutProvider(t *testing.T) {
	f := newFixture(t, nil)
	f.pet(func(p *world.Pet) { p.Data = nbt.Compound{"AllowedToFollow": int8(0)} })
	assert.Equal(t, 1, f.mgr.Renew(f.owner).Granted())
}

func TestRenewIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.pet(nil)
	f.pet(func(p *world.Pet) { p.Position = companion.Vec3{X: -100, Y: 70, Z: 400} })

	f.mgr.Renew(f.owner)
	first := f.mgr.Leases(f.owner)
	firstTickets := f.state.Tickets.All()

	d := f.mgr.Renew(f.owner)
	assert.Equal(t, Delta{Kept: 2}, d)
	assert.Equal(t, first, f.mgr.Leases(f.owner))
	assert.Equal(t, firstTickets, f.state.Tickets.All())
}

func TestIneligibleLeaseLapsesWithoutRevoke(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pet(nil)
	f.mgr.Renew(f.owner)

	p.IsSitting = true
	d := f.mgr.Renew(f.owner)
	assert.Equal(t, Delta{Lapsed: 1}, d)
	assert.Empty(t, f.mgr.Leases(f.owner))
	assert.Equal(t, 1, f.state.Tickets.Len(), "ticket stays until its TTL runs out")

	expired := 0
	for i := 0; i < 5; i++ {
		expired += f.state.Tick()
	}
	assert.Equal(t, 1, expired)
	assert.Zero(t, f.state.Tickets.Len())
}

func TestMovedCompanionFollowsItsChunk(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pet(nil)
	f.mgr.Renew(f.owner)
	p.Position = companion.Vec3{X: 200, Y: 64, Z: 200}
	assert.Equal(t, Delta{Moved: 1}, f.mgr.Renew(f.owner))
	assert.Equal(t, companion.ChunkPos{X: 12, Z: 12}, f.mgr.Leases(f.owner)[p.UUID].Chunk)
}

func TestRenewOfflineOwnerGrantsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.pet(nil)
	f.state.RemovePlayer(f.owner)
	assert.Equal(t, Delta{}, f.mgr.Renew(f.owner))
	assert.Zero(t, f.state.Tickets.Len())
}

func TestRecordsSurviveReconnect(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pet(nil)
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	f.mgr.Join(f.owner, Records{})
	f.mgr.Renew(f.owner)
	f.mgr.MarkFirstRecoveryDone(f.owner)
	saved := f.mgr.Leave(f.owner)
	require.NoError(t, store.Save(ctx, f.owner, saved))
	assert.False(t, f.mgr.Joined(f.owner))

	// Everything the host held is gone by the time the owner returns.
	f.state.Tickets.RemoveWhere(func(world.Ticket) bool { return true })
	f.state.RemovePet(p.UUID)

	loaded, err := store.Load(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
	require.Len(t, loaded.Leases, 1)
	assert.Equal(t, Record{ID: p.UUID, Partition: overworld, Chunk: companion.ChunkPos{X: 2, Z: -1}}, loaded.Leases[0])
	assert.True(t, loaded.FirstRecoveryDone)

	assert.Equal(t, 1, f.mgr.Join(f.owner, loaded))
	assert.True(t, f.state.Tickets.Loaded(overworld, companion.ChunkPos{X: 2, Z: -1}), "persisted lease is granted before the pet is resident")
	assert.True(t, f.mgr.FirstRecoveryDone(f.owner))
}

func TestFileStoreMissingAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.New()

	r, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, r.Empty())

	require.NoError(t, store.Save(ctx, id, Records{FirstRecoveryDone: true}))
	require.NoError(t, store.Delete(ctx, id))
	require.NoError(t, store.Delete(ctx, id))
	r, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, r.Empty())
}

func TestUnmarshalDropsMalformedEntries(t *testing.T) {
	id := uuid.New()
	good := Records{Leases: []Record{{ID: id, Partition: "minecraft:the_end", Chunk: companion.ChunkPos{X: -3, Z: 9}}}}
	c := good.MarshalNBT()
	list, _ := c.List(keyLeases)
	list.Items = append(list.Items,
		nbt.Compound{keyMost: int64(1), keyChunkX: int32(0), keyChunkZ: int32(0), keyDimension: "x"},
		nbt.Compound{keyMost: int64(1), keyLeast: int64(2), keyChunkX: int32(0), keyChunkZ: int32(0)},
	)
	c[keyLeases] = list

	got := UnmarshalRecords(c)
	assert.Equal(t, good.Leases, got.Leases)
	assert.False(t, got.FirstRecoveryDone)
	assert.Equal(t, Records{}, UnmarshalRecords(nbt.Compound{}))
}

func TestRecoveryReleasedAfterDelay(t *testing.T) {
	f := newFixture(t, nil)
	snap := companion.Snapshot{ID: uuid.New(), Partition: overworld, Chunk: companion.ChunkPos{X: 50, Z: 50}}
	assert.Equal(t, 1, f.mgr.GrantRecovery(f.owner, []companion.Snapshot{snap}))
	assert.Equal(t, 1, f.mgr.PendingRecovery(f.owner))

	for i := 0; i < 100; i++ {
		f.state.Tick()
	}
	assert.True(t, f.state.Tickets.Loaded(overworld, snap.Chunk), "recovery tickets do not age")

	for i := 0; i < 3; i++ {
		f.queue.Tick()
	}
	assert.False(t, f.state.Tickets.Loaded(overworld, snap.Chunk))
	assert.Zero(t, f.mgr.PendingRecovery(f.owner))
}

func TestRecoveryCancelledOnceRenewalConfirms(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pet(nil)
	f.mgr.GrantRecovery(f.owner, []companion.Snapshot{{ID: p.UUID, Partition: overworld, Chunk: companion.ChunkPos{X: 50, Z: 50}}})
	require.Equal(t, 1, f.queue.Delayed())

	f.mgr.Renew(f.owner)
	assert.Zero(t, f.queue.Delayed(), "cleanup callback cancelled")
	assert.Zero(t, f.mgr.PendingRecovery(f.owner))
	assert.Equal(t, 1, f.state.Tickets.Len())
	assert.Equal(t, world.TicketLease, f.state.Tickets.All()[0].Kind)
}

func TestRegrantReplacesPendingRecovery(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.mgr.GrantRecovery(f.owner, []companion.Snapshot{{ID: id, Partition: overworld, Chunk: companion.ChunkPos{X: 1}}})
	f.mgr.GrantRecovery(f.owner, []companion.Snapshot{{ID: id, Partition: overworld, Chunk: companion.ChunkPos{X: 9}}})
	assert.Equal(t, 1, f.queue.Delayed())
	assert.Equal(t, 1, f.state.Tickets.Len())
	assert.True(t, f.state.Tickets.Loaded(overworld, companion.ChunkPos{X: 9}))
}

func TestCleanupAndReset(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.Join(f.owner, Records{FirstRecoveryDone: true})
	f.pet(nil)
	f.mgr.Renew(f.owner)
	f.mgr.GrantRecovery(f.owner, []companion.Snapshot{{ID: uuid.New(), Partition: overworld}})

	assert.Equal(t, 1, f.mgr.Cleanup())
	assert.Zero(t, f.queue.Delayed())
	assert.Equal(t, 1, f.state.Tickets.Len())

	assert.Equal(t, 1, f.mgr.Reset(f.owner))
	assert.Zero(t, f.state.Tickets.Len())
	assert.Empty(t, f.mgr.Leases(f.owner))
	assert.False(t, f.mgr.FirstRecoveryDone(f.owner))
	assert.True(t, f.mgr.Joined(f.owner))
}

func TestConfigClamped(t *testing.T) {
	c := Config{TTL: 1, Radius: 9, RenewInterval: time.Millisecond, RecoveryRadius: -2, CleanupDelay: 0}.Clamped()
	assert.Equal(t, Config{TTL: MinTTL, Radius: MaxRadius, RenewInterval: MinRenewInterval, RecoveryRadius: 0, CleanupDelay: 1}, c)

	c = Config{TTL: 1 << 30, RenewInterval: time.Hour}.Clamped()
	assert.Equal(t, MaxTTL, c.TTL)
	assert.Equal(t, MaxRenewInterval, c.RenewInterval)
}
