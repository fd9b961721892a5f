// Package script drives a participant's input from a Lua script, so bots
// can join a session without a keyboard.
//
// A script defines a global function input(step, index) returning a table
// {x = ..., y = ...}. It may also return a table {name = ..., description = ...}
// at the top level describing itself.
package script

import (
	"fmt"
	"os"
	"sort"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/1ureka/lockstep/internal/util"
)

// Info is the optional table a script returns when loaded.
type Info struct {
	Name        string
	Description string
}

type axis struct {
	X int
	Y int
}

// Script is a loaded input script. It is not safe for concurrent use.
type Script struct {
	L     *lua.LState
	fn    *lua.LFunction
	info  Info
	index int
}

// builtins are scripts selectable by name instead of path.
var builtins = map[string]string{
	"idle": `
function input(step, index) return { x = 0, y = 0 } end
return { name = "idle", description = "never moves" }
`,
	"circle": `
local dirs = { {1,0}, {1,1}, {0,1}, {-1,1}, {-1,0}, {-1,-1}, {0,-1}, {1,-1} }
function input(step, index)
  local d = dirs[(math.floor(step / 30) + index) % #dirs + 1]
  return { x = d[1], y = d[2] }
end
return { name = "circle", description = "walks an octagon, offset by participant index" }
`,
	"patrol": `
function input(step, index)
  if math.floor(step / 120) % 2 == 0 then
    return { x = 1, y = 0 }
  end
  return { x = -1, y = 0 }
end
return { name = "patrol", description = "paces left and right" }
`,
}

// Builtins lists the names accepted by Load in place of a path.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a script from path, or a builtin by name.
func Load(pathOrName string) (*Script, error) {
	if src, ok := builtins[pathOrName]; ok {
		return LoadString(src)
	}
	src, err := os.ReadFile(pathOrName)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return LoadString(string(src))
}

// LoadString compiles and runs src in a fresh interpreter with only the
// base, table, string and math libraries available.
func LoadString(src string) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("script: %w", err)
	}

	s := &Script{L: L}

	// Script returns info table
	if tbl, ok := L.Get(-1).(*lua.LTable); ok {
		if err := gluamapper.Map(tbl, &s.info); err != nil {
			L.Close()
			return nil, fmt.Errorf("script: info table: %w", err)
		}
	}
	L.SetTop(0)

	fn, ok := L.GetGlobal("input").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script: no global function input(step, index)")
	}
	s.fn = fn
	return s, nil
}

func (s *Script) Info() Info { return s.info }

// SetIndex sets the participant index passed to input().
func (s *Script) SetIndex(i int) { s.index = i }

// Axis calls input(step, index). Script errors are logged and yield no
// movement, so a broken script never stalls the session.
func (s *Script) Axis(step int32) (int32, int32) {
	a, err := s.Call(step)
	if err != nil {
		util.LogWarning("script: step %d: %v", step, err)
		return 0, 0
	}
	return a[0], a[1]
}

// Call is Axis with the error returned.
func (s *Script) Call(step int32) ([2]int32, error) {
	err := s.L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true},
		lua.LNumber(step), lua.LNumber(s.index))
	if err != nil {
		return [2]int32{}, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return [2]int32{}, fmt.Errorf("input() returned %s, want a table", ret.Type())
	}
	var a axis
	if err := gluamapper.Map(tbl, &a); err != nil {
		return [2]int32{}, err
	}
	return [2]int32{clamp(a.X), clamp(a.Y)}, nil
}

func (s *Script) Close() { s.L.Close() }

func clamp(v int) int32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return int32(v)
	}
}
