package world

import (
	"github.com/google/uuid"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/nbt"
)

// Pet is a resident tamable NPC. It satisfies companion.Companion and
// companion.DataHolder so the lease and discovery code can read it without
// knowing the host's entity model.
type Pet struct {
	UUID       uuid.UUID
	TypeTag    string // namespaced, "minecraft:wolf"
	CustomName string
	OwnerID    uuid.UUID // uuid.Nil = untamed
	IsTamed    bool
	Position   companion.Vec3
	Dim        string

	IsSitting bool
	IsLeashed bool
	Riding    bool

	Data nbt.Compound // persistent tag data visible to extensions

	Target    uuid.UUID // current attack target, uuid.Nil when idle
	GlowTicks int       // remaining ticks of the glowing outline (0 = off)
}

func (p *Pet) ID() uuid.UUID       { return p.UUID }
func (p *Pet) Type() string        { return p.TypeTag }
func (p *Pet) Name() string        { return p.CustomName }
func (p *Pet) Tamed() bool         { return p.IsTamed }
func (p *Pet) Pos() companion.Vec3 { return p.Position }
func (p *Pet) Partition() string   { return p.Dim }
func (p *Pet) Sitting() bool       { return p.IsSitting }
func (p *Pet) Leashed() bool       { return p.IsLeashed }
func (p *Pet) InVehicle() bool     { return p.Riding }
func (p *Pet) Glowing() bool       { return p.GlowTicks > 0 }

func (p *Pet) Owner() (uuid.UUID, bool) {
	if p.OwnerID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.OwnerID, true
}

func (p *Pet) PersistentData() nbt.Compound {
	if p.Data == nil {
		p.Data = nbt.Compound{}
	}
	return p.Data
}

// Chunk returns the chunk the pet currently stands in.
func (p *Pet) Chunk() companion.ChunkPos { return companion.ChunkOf(p.Position) }
