package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/core/sched"
	"github.com/petward/server/internal/nbt"
	"github.com/petward/server/internal/region"
	"github.com/petward/server/internal/region/regiontest"
	"github.com/petward/server/internal/world"
)

var owner = uuid.MustParse("0f0e0d0c-0b0a-0908-0706-050403020100")

func place(t *testing.T, dir string, cx, cz int, entities ...nbt.Compound) {
	t.Helper()
	regiontest.Write(t, dir, region.ContainerOf(cx, cz), regiontest.EntityChunk(cx, cz, entities...))
}

func drain(t *testing.T, q *sched.Queue, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		require.True(t, time.Now().Before(deadline), "scan did not complete")
		q.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestCandidateDirs(t *testing.T) {
	w := "/srv/world"
	assert.Equal(t, []string{"/srv/world/entities", "/srv/world/region"}, CandidateDirs(w, Overworld))
	assert.Equal(t, []string{
		"/srv/world/dimensions/minecraft/the_nether/entities",
		"/srv/world/dimensions/minecraft/the_nether/region",
		"/srv/world/DIM-1/entities",
		"/srv/world/DIM-1/region",
	}, CandidateDirs(w, Nether))
	assert.Contains(t, CandidateDirs(w, End), "/srv/world/DIM1/region")
	assert.Equal(t, []string{
		"/srv/world/dimensions/mymod/deep/void/entities",
		"/srv/world/dimensions/mymod/deep/void/region",
	}, CandidateDirs(w, "mymod:deep/void"))
	assert.Empty(t, CandidateDirs(w, "bad:../escape"))
	assert.Empty(t, CandidateDirs(w, ""))
}

func TestBareKeysUseBuiltinLayouts(t *testing.T) {
	w := "/srv/world"
	assert.Equal(t, CandidateDirs(w, Overworld), CandidateDirs(w, "overworld"))
	assert.Equal(t, CandidateDirs(w, Nether), CandidateDirs(w, "the_nether"))
	assert.Contains(t, CandidateDirs(w, "the_end"), "/srv/world/DIM1/entities")

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "DIM-1", "region"), 0o755))
	parts := Resolve(dir, []string{"the_nether"})
	require.Len(t, parts, 1)
	assert.Equal(t, Nether, parts[0].Key)
	assert.Equal(t, []string{filepath.Join(dir, "DIM-1", "region")}, parts[0].Dirs)
}

func TestResolveKeepsExistingDirs(t *testing.T) {
	w := t.TempDir()
	for _, d := range []string{"entities", "DIM-1/region", "dimensions/minecraft/the_nether/entities", "dimensions/mymod/void/region"} {
		require.NoError(t, os.MkdirAll(filepath.Join(w, d), 0o755))
	}

	parts := Resolve(w, []string{Overworld, Nether, End})
	require.Len(t, parts, 3)
	assert.Equal(t, []string{filepath.Join(w, "entities")}, parts[0].Dirs)
	assert.Equal(t, []string{
		filepath.Join(w, "dimensions/minecraft/the_nether/entities"),
		filepath.Join(w, "DIM-1/region"),
	}, parts[1].Dirs)
	assert.Empty(t, parts[2].Dirs)

	assert.Equal(t, []string{Overworld, Nether, End, "mymod:void"}, Discover(w))
}

func TestScanDiskDedupAcrossContainers(t *testing.T) {
	w := t.TempDir()
	id := uuid.New()
	fresh := regiontest.Pet(id, "minecraft:wolf", owner, 1, 64, 1, nil)
	stale := regiontest.Pet(id, "minecraft:wolf", owner, 900, 64, 900, nil)
	other := regiontest.Pet(uuid.New(), "minecraft:cat", uuid.New(), 2, 64, 2, nil)
	place(t, filepath.Join(w, "entities"), 0, 0, fresh, other)
	place(t, filepath.Join(w, "region"), 56, 56, stale)

	var progress [][2]int
	s := NewScanner(nil, nil)
	res, err := s.ScanDisk(context.Background(), owner, Resolve(w, []string{Overworld}), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, companion.Vec3{X: 1, Y: 64, Z: 1}, res.Snapshots[0].Pos)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
}

func TestScanSkipsBadFileNames(t *testing.T) {
	w := t.TempDir()
	dir := filepath.Join(w, "entities")
	place(t, dir, 0, 0, regiontest.Pet(uuid.New(), "minecraft:wolf", owner, 1, 64, 1, nil))
	for _, name := range []string{"r.0.mca", "r.a.b.mca", "r.0.0.0.mca", "region.mca"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("garbage"), 0o644))
	}

	res, err := NewScanner(nil, nil).ScanDisk(context.Background(), owner, Resolve(w, []string{Overworld}), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.FilesSkipped)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 1, res.Chunks)
	assert.Zero(t, res.FilesFailed)
	assert.Len(t, res.Snapshots, 1)
}

func TestScanContinuesPastCorruption(t *testing.T) {
	w := t.TempDir()
	dir := filepath.Join(w, "entities")
	id := uuid.New()
	regiontest.Write(t, dir, region.Coord{X: 0, Z: 0},
		regiontest.Chunk{X: 0, Z: 0, Raw: []byte{0x78, 0x9c, 0xde, 0xad}},
		regiontest.EntityChunk(1, 0, regiontest.Pet(id, "minecraft:parrot", owner, 20, 70, 3, nil)),
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.1.1.mca"), make([]byte, 100), 0o644))

	res, err := NewScanner(nil, nil).ScanDisk(context.Background(), owner, Resolve(w, []string{Overworld}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesFailed)
	assert.Equal(t, 1, res.ChunksFailed)
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, id, res.Snapshots[0].ID)
}

func TestScanCancelledReturnsPartial(t *testing.T) {
	w := t.TempDir()
	place(t, filepath.Join(w, "entities"), 0, 0, regiontest.Pet(uuid.New(), "minecraft:wolf", owner, 1, 64, 1, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewScanner(nil, nil).ScanDisk(ctx, owner, Resolve(w, []string{Overworld}), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Snapshots)
}

func TestMergeSupersedesMovedCompanion(t *testing.T) {
	id := uuid.New()
	home := &companion.BlockPos{X: 5, Y: 64, Z: 5}
	disk := []companion.Snapshot{{
		ID: id, Type: "minecraft:wolf", Name: "Rex",
		Pos: companion.Vec3{X: 10, Y: 64, Z: 10}, Chunk: companion.ChunkPos{},
		Partition: Overworld, Independent: true, Home: home, Origin: companion.OriginDisk,
	}}
	pet := &world.Pet{UUID: id, TypeTag: "minecraft:wolf", OwnerID: owner, IsTamed: true,
		Position: companion.Vec3{X: 40.5, Y: 64, Z: 10}, Dim: Overworld, IsSitting: true}

	got := Merge(owner, disk, []companion.Companion{pet}, nil)
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, companion.OriginUpdated, s.Origin)
	assert.Equal(t, pet.Position, s.Pos)
	assert.Equal(t, companion.ChunkPos{X: 2, Z: 0}, s.Chunk)
	assert.True(t, s.Sitting)
	assert.True(t, s.Independent)
	assert.Same(t, home, s.Home)
	assert.Equal(t, "Rex", s.Name)

	// Within epsilon the disk snapshot stands.
	pet.Position = companion.Vec3{X: 10.05, Y: 64, Z: 9.95}
	got = Merge(owner, disk, []companion.Companion{pet}, nil)
	assert.Equal(t, companion.OriginDisk, got[0].Origin)
	assert.False(t, got[0].Sitting)
}

func TestMergeAppendsLiveOnly(t *testing.T) {
	disk := []companion.Snapshot{{ID: uuid.New(), Type: "minecraft:cat", Origin: companion.OriginDisk}}
	mine := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", OwnerID: owner, IsTamed: true}
	theirs := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", OwnerID: uuid.New(), IsTamed: true}

	got := Merge(owner, disk, []companion.Companion{mine, theirs}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, mine.UUID, got[1].ID)
	assert.Equal(t, companion.OriginLive, got[1].Origin)
}

func TestMergedResultIsUniqueAndCoversLive(t *testing.T) {
	ids := make([]uuid.UUID, 12)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for round := 0; round < 20; round++ {
		var disk []companion.Snapshot
		var live []companion.Companion
		for i, id := range ids {
			if (i+round)%3 != 0 {
				disk = append(disk, companion.Snapshot{ID: id, Type: "minecraft:wolf",
					Pos: companion.Vec3{X: float64(i)}, Sitting: i%4 == 0})
			}
			if (i*round)%2 == 0 {
				live = append(live, &world.Pet{UUID: id, TypeTag: "minecraft:horse", OwnerID: owner,
					IsTamed: true, Position: companion.Vec3{X: float64(i + round%2)}})
			}
		}
		merged := Merge(owner, disk, live, nil)
		cat := companion.Categorize(merged, nil)

		seen := map[uuid.UUID]int{}
		for _, s := range cat.All() {
			seen[s.ID]++
		}
		for id, n := range seen {
			assert.Equal(t, 1, n, "identity %s appears %d times", id, n)
		}
		for _, c := range live {
			assert.Contains(t, seen, c.ID())
		}
	}
}

type liveFunc func(companion.Identity) []companion.Companion

func (f liveFunc) CompanionsOf(o companion.Identity) []companion.Companion { return f(o) }

func TestCoordinatorRejectsConcurrentScan(t *testing.T) {
	w := t.TempDir()
	place(t, filepath.Join(w, "entities"), 0, 0,
		regiontest.Pet(uuid.New(), "minecraft:wolf", owner, 1, 64, 1, nbt.Compound{"Sitting": int8(1)}),
		regiontest.Pet(uuid.New(), "minecraft:horse", owner, 2, 64, 2, nil),
	)
	state := world.NewState()
	livePet := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", OwnerID: owner, IsTamed: true, Dim: Overworld}
	state.AddPet(livePet)

	q := sched.NewQueue(nil)
	flushed := 0
	c := NewCoordinator(NewScanner(nil, nil), state, q, nil, nil, nil,
		WithFlush(func() error { flushed++; return errors.New("disk full") }))

	var (
		rep      Report
		scanErr  error
		done     bool
		progress []int
	)
	req := Request{
		Owner:      owner,
		Partitions: Resolve(w, []string{Overworld, Nether}),
		Flush:      true,
		OnProgress: func(d, _ int) { progress = append(progress, d) },
		OnDone: func(r Report, err error) {
			rep, scanErr, done = r, err, true
		},
	}
	require.NoError(t, c.Start(req))
	assert.Equal(t, 1, flushed, "flush failure is not fatal")

	assert.ErrorIs(t, c.Start(req), ErrAlreadyScanning)
	assert.Equal(t, 1, flushed, "rejected request starts nothing")
	assert.True(t, c.Scanning(owner))

	drain(t, q, func() bool { return done })
	require.NoError(t, scanErr)
	assert.False(t, c.Scanning(owner))
	assert.Equal(t, []int{1}, progress)

	assert.Len(t, rep.Sitting, 1)
	assert.Len(t, rep.Roaming, 1)
	require.Len(t, rep.Standing, 1)
	assert.Equal(t, livePet.UUID, rep.Standing[0].ID)
	assert.Equal(t, []string{Overworld, Nether}, rep.Partitions)

	// A finished scan frees the owner for the next one.
	done = false
	require.NoError(t, c.Start(req))
	drain(t, q, func() bool { return done })
}

func TestCoordinatorReportsGenericFailure(t *testing.T) {
	q := sched.NewQueue(nil)
	boom := liveFunc(func(companion.Identity) []companion.Companion { panic("host exploded") })
	c := NewCoordinator(NewScanner(nil, nil), boom, q, nil, nil, nil)

	var (
		scanErr error
		done    bool
	)
	require.NoError(t, c.Start(Request{Owner: owner, OnDone: func(_ Report, err error) { scanErr, done = err, true }}))
	drain(t, q, func() bool { return done })
	assert.ErrorIs(t, scanErr, ErrScanFailed)
	assert.False(t, c.Scanning(owner))
	assert.Zero(t, c.InFlight())
}
