package companion

import "github.com/petward/server/internal/nbt"

// Companion is the capability the host exposes for a resident, owned NPC.
// Implemented by an adapter over the host's concrete entity type.
type Companion interface {
	ID() Identity
	Type() string
	Name() string
	Owner() (Identity, bool)
	Tamed() bool
	Pos() Vec3
	Partition() string
	Sitting() bool
	Leashed() bool
	InVehicle() bool
}

// DataHolder is implemented by companions that expose their persistent tag
// data to extensions.
type DataHolder interface {
	PersistentData() nbt.Compound
}

// Independence is the optional third-party extension marking companions that
// do not need owner proximity. A nil Independence means the extension is
// absent: nobody is independent and nobody has a home.
type Independence interface {
	IsIndependent(c Companion) bool
	HomePosition(c Companion) (BlockPos, bool)
	// FromRecord reads the same state from an on-disk entity record.
	FromRecord(entity nbt.Compound) (independent bool, home *BlockPos)
}

// TagIndependence reads the extension's state from entity tags:
// AllowedToFollow (inverted) and IndependentHome (int[3]).
type TagIndependence struct{}

func (TagIndependence) FromRecord(n nbt.Compound) (bool, *BlockPos) {
	independent := false
	if _, ok := n.Int("AllowedToFollow"); ok {
		independent = !n.Bool("AllowedToFollow")
	}
	if h, ok := n.IntArray("IndependentHome"); ok && len(h) == 3 {
		return independent, &BlockPos{X: int(h[0]), Y: int(h[1]), Z: int(h[2])}
	}
	return independent, nil
}

func (t TagIndependence) IsIndependent(c Companion) bool {
	d, ok := c.(DataHolder)
	if !ok {
		return false
	}
	ind, _ := t.FromRecord(d.PersistentData())
	return ind
}

func (t TagIndependence) HomePosition(c Companion) (BlockPos, bool) {
	d, ok := c.(DataHolder)
	if !ok {
		return BlockPos{}, false
	}
	if _, home := t.FromRecord(d.PersistentData()); home != nil {
		return *home, true
	}
	return BlockPos{}, false
}

// IsIndependent is nil-safe.
func IsIndependent(ind Independence, c Companion) bool {
	return ind != nil && ind.IsIndependent(c)
}

// FromLive synthesizes a snapshot from a resident companion.
func FromLive(c Companion, ind Independence) Snapshot {
	s := Snapshot{
		ID:        c.ID(),
		Type:      c.Type(),
		Name:      c.Name(),
		Pos:       c.Pos(),
		Chunk:     ChunkOf(c.Pos()),
		Partition: c.Partition(),
		Sitting:   c.Sitting(),
		Leashed:   c.Leashed(),
		InVehicle: c.InVehicle(),
		Origin:    OriginLive,
	}
	if ind != nil {
		s.Independent = ind.IsIndependent(c)
		if h, ok := ind.HomePosition(c); ok {
			s.Home = &h
		}
	}
	return s
}

// Supersede rebuilds a disk snapshot from its live companion. Position, chunk
// and the derived flags come from the live entity; independence and home are
// carried over because they cannot be re-derived cheaply from it.
func Supersede(disk Snapshot, c Companion) Snapshot {
	s := FromLive(c, nil)
	s.Independent = disk.Independent
	s.Home = disk.Home
	if s.Name == "" {
		s.Name = disk.Name
	}
	s.Origin = OriginUpdated
	return s
}
