// Package companion holds the companion data model: identities, positions,
// the immutable Snapshot produced by discovery, the capability interface the
// host implements for live companions, and the on-disk record extractor.
package companion

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Identity is the 128-bit id assigned at companion creation.
type Identity = uuid.UUID

type Vec3 struct {
	X, Y, Z float64
}

// Differs reports whether any single axis moved by more than eps.
func (v Vec3) Differs(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) > eps || math.Abs(v.Y-o.Y) > eps || math.Abs(v.Z-o.Z) > eps
}

func (v Vec3) String() string { return fmt.Sprintf("%.1f, %.1f, %.1f", v.X, v.Y, v.Z) }

// ChunkPos is an absolute chunk coordinate (16x16 columns).
type ChunkPos struct {
	X, Z int
}

func (c ChunkPos) String() string { return fmt.Sprintf("[%d, %d]", c.X, c.Z) }

// ChunkOf returns the chunk containing a world position.
func ChunkOf(p Vec3) ChunkPos {
	return ChunkPos{X: int(math.Floor(p.X)) >> 4, Z: int(math.Floor(p.Z)) >> 4}
}

type BlockPos struct {
	X, Y, Z int
}

// Origin records where a snapshot's data came from.
type Origin int

const (
	OriginDisk    Origin = iota // decoded from a region container
	OriginLive                  // resident companion with no on-disk record
	OriginUpdated               // on disk, superseded by a newer live position
)

func (o Origin) String() string {
	switch o {
	case OriginDisk:
		return "disk"
	case OriginLive:
		return "live"
	case OriginUpdated:
		return "updated"
	}
	return "unknown"
}

// Snapshot is one companion as seen by a single discovery pass. Never mutated
// after construction; superseding data builds a replacement.
type Snapshot struct {
	ID          Identity
	Type        string // namespaced type tag, e.g. "minecraft:wolf"
	Name        string // custom name, "" when unnamed
	Pos         Vec3
	Chunk       ChunkPos
	Partition   string
	Sitting     bool
	Leashed     bool
	InVehicle   bool
	Independent bool
	Home        *BlockPos
	Origin      Origin
}

// DisplayName is the custom name or, failing that, the type path.
func (s Snapshot) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return TypePath(s.Type)
}

// TypePath strips the namespace from a type tag ("minecraft:wolf" → "wolf").
func TypePath(tag string) string {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}

// Target describes an entity a hostile mob is about to attack.
type Target struct {
	ID     Identity
	Type   string
	Player bool
}
