package companion

import (
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/petward/server/internal/nbt"
)

// Extractor pulls owned companion snapshots out of chunk records.
// Safe for concurrent use if Catalog and Independence are.
type Extractor struct {
	Catalog *Catalog

	// Independence, when nil, leaves every snapshot non-independent.
	Independence Independence
}

// Entities returns the chunk's entity list: top-level "Entities" in entity
// containers, "Level.Entities" in the legacy chunk layout.
func Entities(root nbt.Compound) ([]nbt.Compound, bool) {
	if l, ok := root.List("Entities"); ok {
		return l.Compounds(), true
	}
	if lvl, ok := root.Compound("Level"); ok {
		if l, ok := lvl.List("Entities"); ok {
			return l.Compounds(), true
		}
	}
	return nil, false
}

// Extract returns the companions owned by owner in one chunk record,
// including passengers one level deep. Identities are unique within the
// result; the first occurrence wins.
func (e *Extractor) Extract(root nbt.Compound, owner Identity, partition string) []Snapshot {
	entities, ok := Entities(root)
	if !ok {
		return nil
	}
	var out []Snapshot
	seen := make(map[Identity]struct{})
	add := func(n nbt.Compound, inVehicle bool) {
		s, ok := e.snapshot(n, owner, partition, inVehicle)
		if !ok {
			return
		}
		if _, dup := seen[s.ID]; dup {
			return
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	for _, n := range entities {
		add(n, false)
		if riders, ok := n.List("Passengers"); ok {
			for _, p := range riders.Compounds() {
				add(p, true)
			}
		}
	}
	return out
}

// Eligible applies the companion test to one entity record and returns its
// owner: an Owner tag resolving to 128 bits, a type not on the exclusion
// list, and at least one companion marker field.
func (e *Extractor) Eligible(n nbt.Compound) (Identity, bool) {
	owner, ok := OwnerOf(n)
	if !ok {
		return uuid.Nil, false
	}
	tag, ok := n.String("id")
	if !ok || tag == "" || e.catalog().IsExcluded(tag) {
		return uuid.Nil, false
	}
	for _, m := range e.catalog().Markers() {
		if n.Has(m) {
			return owner, true
		}
	}
	return uuid.Nil, false
}

func (e *Extractor) catalog() *Catalog {
	if e.Catalog != nil {
		return e.Catalog
	}
	return defaultCatalog
}

func (e *Extractor) snapshot(n nbt.Compound, owner Identity, partition string, inVehicle bool) (Snapshot, bool) {
	got, ok := e.Eligible(n)
	if !ok || got != owner {
		return Snapshot{}, false
	}
	id, ok := IdentityOf(n)
	if !ok {
		return Snapshot{}, false
	}
	posList, ok := n.List("Pos")
	if !ok {
		return Snapshot{}, false
	}
	xyz, ok := posList.Doubles()
	if !ok || len(xyz) != 3 {
		return Snapshot{}, false
	}
	tag, _ := n.String("id")
	pos := Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	s := Snapshot{
		ID:        id,
		Type:      tag,
		Name:      CustomName(n),
		Pos:       pos,
		Chunk:     ChunkOf(pos),
		Partition: partition,
		Sitting:   n.Bool("Sitting") || n.Bool("OrderedToSit"),
		Leashed:   n.Has("Leash") || n.Has("leash"),
		InVehicle: inVehicle,
		Origin:    OriginDisk,
	}
	if e.Independence != nil {
		s.Independent, s.Home = e.Independence.FromRecord(n)
	}
	return s, true
}

// IdentityOf reads the entity's own id: UUID int[4], or the legacy
// UUIDMost/UUIDLeast pair. A UUID array of the wrong length is malformed.
func IdentityOf(n nbt.Compound) (Identity, bool) {
	if n.Has("UUID") {
		arr, ok := n.IntArray("UUID")
		if !ok {
			return uuid.Nil, false
		}
		return nbt.UUIDFromInts(arr)
	}
	most, ok1 := n.Long("UUIDMost")
	least, ok2 := n.Long("UUIDLeast")
	if !ok1 || !ok2 {
		return uuid.Nil, false
	}
	return nbt.UUIDFromHalves(most, least), true
}

// OwnerOf resolves the Owner tag (int[4] or string) or legacy OwnerUUID.
func OwnerOf(n nbt.Compound) (Identity, bool) {
	switch v := n["Owner"].(type) {
	case []int32:
		return nbt.UUIDFromInts(v)
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	}
	if s, ok := n.String("OwnerUUID"); ok && s != "" {
		id, err := uuid.Parse(s)
		return id, err == nil
	}
	return uuid.Nil, false
}

// CustomName flattens the CustomName text component to plain text.
func CustomName(n nbt.Compound) string {
	if c, ok := n.Compound("CustomName"); ok {
		s, _ := c.String("text")
		return s
	}
	raw, ok := n.String("CustomName")
	if !ok {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return raw
	}
	v := gjson.Parse(raw)
	if v.Type == gjson.String {
		return v.String()
	}
	if !v.IsObject() {
		return raw
	}
	var b strings.Builder
	b.WriteString(v.Get("text").String())
	v.Get("extra").ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			b.WriteString(part.String())
		} else {
			b.WriteString(part.Get("text").String())
		}
		return true
	})
	return b.String()
}
