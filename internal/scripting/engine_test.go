package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/nbt"
	"github.com/petward/server/internal/world"
)

const independenceScript = `
function is_independent(pet)
  if pet.type == "minecraft:parrot" then return true end
  return pet.tags.AllowedToFollow == 0
end

function home_position(pet)
  local h = pet.tags.IndependentHome
  if h == nil then return nil end
  return h[1], h[2], h[3]
end
`

func newEngine(t *testing.T, script string) *Engine {
	t.Helper()
	dir := t.TempDir()
	if script != "" {
		sub := filepath.Join(dir, "independence")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "policy.lua"), []byte(script), 0o644))
	}
	e, err := NewEngine(dir, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestLuaIndependence(t *testing.T) {
	e := newEngine(t, independenceScript)
	ind := e.Independence()
	require.NotNil(t, ind)

	wolf := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", Data: nbt.Compound{
		"AllowedToFollow": int8(0),
		"IndependentHome": []int32{10, 64, -5},
	}}
	assert.True(t, ind.IsIndependent(wolf))
	home, ok := ind.HomePosition(wolf)
	require.True(t, ok)
	assert.Equal(t, companion.BlockPos{X: 10, Y: 64, Z: -5}, home)

	follower := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:wolf", Data: nbt.Compound{"AllowedToFollow": int8(1)}}
	assert.False(t, ind.IsIndependent(follower))
	_, ok = ind.HomePosition(follower)
	assert.False(t, ok)

	assert.True(t, ind.IsIndependent(&world.Pet{UUID: uuid.New(), TypeTag: "minecraft:parrot"}))

	free, h := ind.FromRecord(nbt.Compound{"AllowedToFollow": int8(0)})
	assert.True(t, free)
	assert.Nil(t, h)
}

func TestNoProviderWithoutScript(t *testing.T) {
	e := newEngine(t, "")
	assert.Nil(t, e.Independence())
}

func TestScriptErrorsAreContained(t *testing.T) {
	e := newEngine(t, `
function is_independent(pet) error("broken") end
function home_position(pet) return pet.nope.field end
`)
	ind := e.Independence()
	require.NotNil(t, ind)
	p := &world.Pet{UUID: uuid.New(), TypeTag: "minecraft:cat"}
	assert.False(t, ind.IsIndependent(p))
	_, ok := ind.HomePosition(p)
	assert.False(t, ok)
}

func TestLoadErrorReported(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "core")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "bad.lua"), []byte("function ("), 0o644))
	_, err := NewEngine(dir, nil)
	assert.ErrorContains(t, err, "load core scripts")
}
