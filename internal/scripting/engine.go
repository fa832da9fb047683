package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/nbt"
)

// Engine wraps a single gopher-lua VM for companion policy hooks.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "independence"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua. Used by tests and the console.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Has reports whether a global function is defined.
func (e *Engine) Has(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Independence returns a provider backed by the is_independent and
// home_position script functions, or nil when is_independent is not
// defined. Record-side reads use the tag convention because scan workers
// cannot share the VM.
func (e *Engine) Independence() companion.Independence {
	if !e.Has("is_independent") {
		return nil
	}
	return &luaIndependence{e: e}
}

type luaIndependence struct {
	e    *Engine
	tags companion.TagIndependence
}

func (l *luaIndependence) IsIndependent(c companion.Companion) bool {
	fn := l.e.vm.GetGlobal("is_independent")
	if err := l.e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, l.e.companionTable(c)); err != nil {
		l.e.log.Error("lua is_independent error", zap.Error(err))
		return false
	}
	result := l.e.vm.Get(-1)
	l.e.vm.Pop(1)
	return lua.LVAsBool(result)
}

func (l *luaIndependence) HomePosition(c companion.Companion) (companion.BlockPos, bool) {
	fn, ok := l.e.vm.GetGlobal("home_position").(*lua.LFunction)
	if !ok {
		return l.tags.HomePosition(c)
	}
	if err := l.e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    3,
		Protect: true,
	}, l.e.companionTable(c)); err != nil {
		l.e.log.Error("lua home_position error", zap.Error(err))
		return companion.BlockPos{}, false
	}
	x, y, z := l.e.vm.Get(-3), l.e.vm.Get(-2), l.e.vm.Get(-1)
	l.e.vm.Pop(3)
	if x == lua.LNil || y == lua.LNil || z == lua.LNil {
		return companion.BlockPos{}, false
	}
	return companion.BlockPos{
		X: int(lua.LVAsNumber(x)),
		Y: int(lua.LVAsNumber(y)),
		Z: int(lua.LVAsNumber(z)),
	}, true
}

func (l *luaIndependence) FromRecord(n nbt.Compound) (bool, *companion.BlockPos) {
	return l.tags.FromRecord(n)
}

// companionTable packs a companion for script hooks.
func (e *Engine) companionTable(c companion.Companion) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(c.ID().String()))
	t.RawSetString("type", lua.LString(c.Type()))
	t.RawSetString("name", lua.LString(c.Name()))
	t.RawSetString("partition", lua.LString(c.Partition()))
	p := c.Pos()
	t.RawSetString("x", lua.LNumber(p.X))
	t.RawSetString("y", lua.LNumber(p.Y))
	t.RawSetString("z", lua.LNumber(p.Z))
	t.RawSetString("sitting", lua.LBool(c.Sitting()))
	t.RawSetString("leashed", lua.LBool(c.Leashed()))
	t.RawSetString("in_vehicle", lua.LBool(c.InVehicle()))
	if d, ok := c.(companion.DataHolder); ok {
		t.RawSetString("tags", e.compoundTable(d.PersistentData(), 0))
	} else {
		t.RawSetString("tags", e.vm.NewTable())
	}
	return t
}

const maxTableDepth = 8

// compoundTable converts tag data to nested Lua tables. Bytes, shorts, ints,
// longs and floats become numbers; arrays and lists become sequences.
func (e *Engine) compoundTable(c nbt.Compound, depth int) *lua.LTable {
	t := e.vm.NewTable()
	if depth >= maxTableDepth {
		return t
	}
	for k, v := range c {
		if lv := e.value(v, depth); lv != lua.LNil {
			t.RawSetString(k, lv)
		}
	}
	return t
}

func (e *Engine) value(v any, depth int) lua.LValue {
	switch x := v.(type) {
	case int8:
		return lua.LNumber(x)
	case bool:
		return lua.LBool(x)
	case int16:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []byte:
		return e.seq(len(x), func(i int) lua.LValue { return lua.LNumber(int8(x[i])) })
	case []int32:
		return e.seq(len(x), func(i int) lua.LValue { return lua.LNumber(x[i]) })
	case []int64:
		return e.seq(len(x), func(i int) lua.LValue { return lua.LNumber(x[i]) })
	case nbt.Compound:
		return e.compoundTable(x, depth+1)
	case nbt.List:
		if depth+1 >= maxTableDepth {
			return e.vm.NewTable()
		}
		return e.seq(len(x.Items), func(i int) lua.LValue { return e.value(x.Items[i], depth+1) })
	}
	return lua.LNil
}

func (e *Engine) seq(n int, at func(int) lua.LValue) *lua.LTable {
	t := e.vm.CreateTable(n, 0)
	for i := 0; i < n; i++ {
		t.Append(at(i))
	}
	return t
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
