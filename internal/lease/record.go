package lease

import (
	"sort"

	"github.com/google/uuid"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/nbt"
)

// NBT keys of the persisted lease block.
const (
	keyLeases    = "PetLeases"
	keyFirstDone = "FirstRecoveryDone"
	keyMost      = "Most"
	keyLeast     = "Least"
	keyChunkX    = "ChunkX"
	keyChunkZ    = "ChunkZ"
	keyDimension = "Dimension"
)

// Record is one persisted lease: where a companion was last kept loaded.
type Record struct {
	ID        uuid.UUID
	Partition string
	Chunk     companion.ChunkPos
}

// Records is the per-owner block stored with the player's data.
type Records struct {
	Leases            []Record
	FirstRecoveryDone bool
}

func (r Records) Empty() bool { return len(r.Leases) == 0 && !r.FirstRecoveryDone }

// sorted returns the leases ordered by identity so saved files are stable.
func (r Records) sorted() []Record {
	out := append([]Record(nil), r.Leases...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// MarshalNBT encodes the block. Identities are split into two signed 64-bit
// halves.
func (r Records) MarshalNBT() nbt.Compound {
	leases := r.sorted()
	items := make([]nbt.Compound, 0, len(leases))
	for _, l := range leases {
		most, least := nbt.UUIDHalves(l.ID)
		items = append(items, nbt.Compound{
			keyMost:      most,
			keyLeast:     least,
			keyChunkX:    int32(l.Chunk.X),
			keyChunkZ:    int32(l.Chunk.Z),
			keyDimension: l.Partition,
		})
	}
	var done int8
	if r.FirstRecoveryDone {
		done = 1
	}
	return nbt.Compound{
		keyLeases:    nbt.Compounds(items...),
		keyFirstDone: done,
	}
}

// UnmarshalRecords decodes a block written by MarshalNBT. Entries missing a
// field are dropped; the rest survive.
func UnmarshalRecords(c nbt.Compound) Records {
	var r Records
	r.FirstRecoveryDone = c.Bool(keyFirstDone)
	list, ok := c.List(keyLeases)
	if !ok {
		return r
	}
	for _, e := range list.Compounds() {
		most, ok1 := e.Long(keyMost)
		least, ok2 := e.Long(keyLeast)
		x, ok3 := e.Int(keyChunkX)
		z, ok4 := e.Int(keyChunkZ)
		dim, ok5 := e.String(keyDimension)
		if !(ok1 && ok2 && ok3 && ok4 && ok5) || dim == "" {
			continue
		}
		r.Leases = append(r.Leases, Record{
			ID:        nbt.UUIDFromHalves(most, least),
			Partition: dim,
			Chunk:     companion.ChunkPos{X: int(x), Z: int(z)},
		})
	}
	return r
}
