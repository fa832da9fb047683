package companion

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/nbt"
)

var (
	ownerID = uuid.MustParse("11111111-2222-3333-4444-555555555555")
	otherID = uuid.MustParse("99999999-8888-7777-6666-555555555555")
)

func pet(id uuid.UUID, typ string, owner uuid.UUID, extra nbt.Compound) nbt.Compound {
	n := nbt.Compound{
		"id":    typ,
		"UUID":  nbt.UUIDToInts(id),
		"Owner": nbt.UUIDToInts(owner),
		"Pos":   nbt.Doubles(100.5, 64, -20.25),
		"Tame":  int8(1),
	}
	for k, v := range extra {
		n[k] = v
	}
	return n
}

func chunk(entities ...nbt.Compound) nbt.Compound {
	return nbt.Compound{"Entities": nbt.Compounds(entities...)}
}

func TestExtractSittingWolf(t *testing.T) {
	id := uuid.New()
	e := &Extractor{}
	got := e.Extract(chunk(pet(id, "minecraft:wolf", ownerID, nbt.Compound{"Sitting": int8(1)})), ownerID, "minecraft:overworld")
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, id, s.ID)
	assert.True(t, s.Sitting)
	assert.False(t, s.InVehicle)
	assert.Equal(t, ChunkPos{X: 6, Z: -2}, s.Chunk)
	assert.Equal(t, "minecraft:overworld", s.Partition)
	assert.Equal(t, OriginDisk, s.Origin)

	cat := Categorize(got, nil)
	assert.Len(t, cat.Sitting, 1)
	assert.Empty(t, cat.Standing)
}

func TestExtractRoamingHorse(t *testing.T) {
	e := &Extractor{}
	got := e.Extract(chunk(pet(uuid.New(), "minecraft:horse", ownerID, nil)), ownerID, "minecraft:overworld")
	cat := Categorize(got, DefaultCatalog())
	assert.Len(t, cat.Roaming, 1)
	assert.Equal(t, 1, cat.Total())
}

func TestExtractSkipsBadEntitiesOnly(t *testing.T) {
	good := uuid.New()
	badUUID := pet(uuid.New(), "minecraft:cat", ownerID, nil)
	badUUID["UUID"] = []int32{1, 2, 3}
	noPos := pet(uuid.New(), "minecraft:cat", ownerID, nil)
	delete(noPos, "Pos")
	shortPos := pet(uuid.New(), "minecraft:cat", ownerID, nbt.Compound{"Pos": nbt.Doubles(1, 2)})
	noType := pet(uuid.New(), "minecraft:cat", ownerID, nil)
	delete(noType, "id")
	badOwner := pet(uuid.New(), "minecraft:cat", ownerID, nil)
	badOwner["Owner"] = []int32{1, 2, 3, 4, 5}
	arrow := pet(uuid.New(), "minecraft:arrow", ownerID, nil)
	noMarker := pet(uuid.New(), "minecraft:zombie", ownerID, nil)
	delete(noMarker, "Tame")
	foreign := pet(uuid.New(), "minecraft:wolf", otherID, nil)

	e := &Extractor{}
	got := e.Extract(chunk(badUUID, noPos, shortPos, noType, badOwner, arrow, noMarker, foreign,
		pet(good, "minecraft:cat", ownerID, nil)), ownerID, "p")
	require.Len(t, got, 1)
	assert.Equal(t, good, got[0].ID)
}

func TestExtractNoEntities(t *testing.T) {
	e := &Extractor{}
	assert.Empty(t, e.Extract(nbt.Compound{"DataVersion": int32(1)}, ownerID, "p"))
	assert.Empty(t, e.Extract(nbt.Compound{"Entities": nbt.List{}}, ownerID, "p"))
}

func TestExtractPassengersAndDedup(t *testing.T) {
	rider := uuid.New()
	horse := uuid.New()
	boat := nbt.Compound{
		"id":   "minecraft:boat",
		"UUID": nbt.UUIDToInts(uuid.New()),
		"Pos":  nbt.Doubles(0, 60, 0),
	}
	boat["Passengers"] = nbt.Compounds(pet(rider, "minecraft:cat", ownerID, nil))
	h := pet(horse, "minecraft:horse", ownerID, nbt.Compound{
		"Passengers": nbt.Compounds(pet(rider, "minecraft:cat", ownerID, nil)),
	})

	e := &Extractor{}
	got := e.Extract(chunk(boat, h, pet(horse, "minecraft:horse", ownerID, nil)), ownerID, "p")
	require.Len(t, got, 2)
	assert.Equal(t, rider, got[0].ID)
	assert.True(t, got[0].InVehicle)
	assert.Equal(t, horse, got[1].ID)
	assert.False(t, got[1].InVehicle)
}

func TestExtractLegacyForms(t *testing.T) {
	id := uuid.New()
	most, least := nbt.UUIDHalves(id)
	legacy := nbt.Compound{
		"id":         "Ozelot",
		"UUIDMost":   most,
		"UUIDLeast":  least,
		"OwnerUUID":  ownerID.String(),
		"Pos":        nbt.Doubles(-1, 70, -17),
		"Sitting":    int8(0),
		"CustomName": "Tom",
		"Leash":      nbt.Compound{"UUIDMost": int64(1), "UUIDLeast": int64(2)},
		"CatType":    int32(1),
	}
	root := nbt.Compound{"Level": nbt.Compound{"Entities": nbt.Compounds(legacy)}}

	e := &Extractor{}
	got := e.Extract(root, ownerID, "p")
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "Tom", got[0].Name)
	assert.True(t, got[0].Leashed)
	assert.Equal(t, ChunkPos{X: -1, Z: -2}, got[0].Chunk)
}

func TestExtractIndependenceOnlyWithProvider(t *testing.T) {
	n := pet(uuid.New(), "minecraft:wolf", ownerID, nbt.Compound{
		"AllowedToFollow": int8(0),
		"IndependentHome": []int32{10, 64, -5},
	})

	without := (&Extractor{}).Extract(chunk(n), ownerID, "p")
	require.Len(t, without, 1)
	assert.False(t, without[0].Independent)
	assert.Nil(t, without[0].Home)

	with := (&Extractor{Independence: TagIndependence{}}).Extract(chunk(n), ownerID, "p")
	require.Len(t, with, 1)
	assert.True(t, with[0].Independent)
	require.NotNil(t, with[0].Home)
	assert.Equal(t, BlockPos{X: 10, Y: 64, Z: -5}, *with[0].Home)
	assert.Len(t, Categorize(with, nil).Independent, 1)
}

func TestExtractResultBoundedAndUnique(t *testing.T) {
	var entities []nbt.Compound
	passengers := 0
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i := 0; i < 30; i++ {
		n := pet(ids[i%len(ids)], "minecraft:parrot", ownerID, nil)
		if i%4 == 0 {
			n["Passengers"] = nbt.Compounds(pet(uuid.New(), "minecraft:cat", ownerID, nil))
			passengers++
		}
		if i%5 == 0 {
			n["UUID"] = []int32{int32(i)}
		}
		entities = append(entities, n)
	}
	got := (&Extractor{}).Extract(chunk(entities...), ownerID, "p")
	assert.LessOrEqual(t, len(got), len(entities)+passengers)
	seen := map[uuid.UUID]bool{}
	for _, s := range got {
		assert.False(t, seen[s.ID], "duplicate %s", s.ID)
		seen[s.ID] = true
	}
}

func TestCustomNameForms(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"Rex", "Rex"},
		{`"Rex"`, "Rex"},
		{`{"text":"Re","extra":["x",{"text":"!"}]}`, "Rex!"},
		{nbt.Compound{"text": "Fido"}, "Fido"},
		{"", ""},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, CustomName(nbt.Compound{"CustomName": tt.in}))
		})
	}
	assert.Equal(t, "", CustomName(nbt.Compound{}))
}

func TestCategorizePriority(t *testing.T) {
	snaps := []Snapshot{
		{ID: uuid.New(), Type: "minecraft:wolf", Sitting: true, Independent: true},
		{ID: uuid.New(), Type: "minecraft:horse", Independent: true},
		{ID: uuid.New(), Type: "minecraft:horse", Sitting: true},
		{ID: uuid.New(), Type: "mymod:horse"},
		{ID: uuid.New(), Type: "minecraft:wolf"},
	}
	cat := Categorize(snaps, NewCatalog([]string{"horse"}, nil, nil))
	assert.Len(t, cat.Sitting, 2)
	assert.Len(t, cat.Independent, 1)
	assert.Len(t, cat.Roaming, 1)
	assert.Len(t, cat.Standing, 1)
	assert.Equal(t, len(snaps), len(cat.All()))
}

func TestCatalogMatching(t *testing.T) {
	c := NewCatalog([]string{"minecraft:llama", "Horse"}, []string{"arrow"}, []string{"Tame"})
	assert.True(t, c.IsRoaming("minecraft:llama"))
	assert.True(t, c.IsRoaming("minecraft:horse"))
	assert.False(t, c.IsRoaming("othermod:llama"))
	assert.True(t, c.IsExcluded("minecraft:spectral_arrow"))
	assert.False(t, c.IsExcluded("minecraft:wolf"))
	assert.Equal(t, []string{"Tame"}, c.Markers())
}

func TestCatalogExclusionsIgnoreCase(t *testing.T) {
	c := NewCatalog(nil, []string{"Arrow", " Minecraft:Snowball ", ""}, nil)
	assert.True(t, c.IsExcluded("minecraft:arrow"))
	assert.True(t, c.IsExcluded("minecraft:Spectral_Arrow"))
	assert.True(t, c.IsExcluded("minecraft:snowball"))
	assert.False(t, c.IsExcluded("minecraft:wolf"))
}
