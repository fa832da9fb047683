package discovery

import (
	"sort"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/region"
)

// OwnedEntity is a companion-like entity found while inspecting a container.
type OwnedEntity struct {
	Chunk companion.ChunkPos
	ID    companion.Identity
	Type  string
	Owner companion.Identity
}

// Inspection summarizes one container for diagnostics.
type Inspection struct {
	Path     string
	Coord    region.Coord
	Stats    region.Stats
	Entities int           // every entity record, owned or not
	Owned    []OwnedEntity // records passing the eligibility filter, any owner
}

// Owners counts owned entities per owner.
func (in Inspection) Owners() map[companion.Identity]int {
	out := make(map[companion.Identity]int)
	for _, o := range in.Owned {
		out[o.Owner]++
	}
	return out
}

// Inspect decodes every allocated slot of one container.
func Inspect(path string, ex *companion.Extractor) (Inspection, error) {
	if ex == nil {
		ex = &companion.Extractor{}
	}
	var in Inspection
	err := region.With(path, func(c *region.Container) error {
		in.Path = c.Path()
		in.Coord = c.Coord()
		for i := 0; i < region.SlotCount; i++ {
			if !c.Allocated(i) {
				continue
			}
			root, ok := c.ReadSlot(i)
			if !ok {
				continue
			}
			cx, cz := c.ChunkCoord(i)
			entities, _ := companion.Entities(root)
			in.Entities += len(entities)
			for _, e := range entities {
				owner, ok := ex.Eligible(e)
				if !ok {
					continue
				}
				id, _ := companion.IdentityOf(e)
				typ, _ := e.String("id")
				in.Owned = append(in.Owned, OwnedEntity{
					Chunk: companion.ChunkPos{X: cx, Z: cz},
					ID:    id,
					Type:  typ,
					Owner: owner,
				})
			}
		}
		in.Stats = c.Stats()
		return nil
	})
	sort.SliceStable(in.Owned, func(i, j int) bool {
		a, b := in.Owned[i].Chunk, in.Owned[j].Chunk
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return in, err
}
