package multiblock

import (
	"context"

	"github.com/df-mc/dragonfly/server/block/cube"
)

const (
	testKind  Kind     = "box"
	typeShell PartType = 1
	typeCore  PartType = 2
)

type fakeGrid struct {
	parts    map[cube.Pos]Part
	solid    map[cube.Pos]bool
	unloaded map[cube.Pos]bool
	powered  map[cube.Pos]bool
}

func newFakeGrid() *fakeGrid {
	return &fakeGrid{
		parts:    map[cube.Pos]Part{},
		solid:    map[cube.Pos]bool{},
		unloaded: map[cube.Pos]bool{},
		powered:  map[cube.Pos]bool{},
	}
}

func (g *fakeGrid) PartAt(pos cube.Pos) (Part, bool) {
	p, ok := g.parts[pos]
	return p, ok
}

func (g *fakeGrid) MaterialAt(pos cube.Pos) Material {
	if g.solid[pos] {
		return MaterialSolid
	}
	return MaterialAir | MaterialReplaceable
}

func (g *fakeGrid) IsAir(pos cube.Pos) bool {
	_, part := g.parts[pos]
	return !part && !g.solid[pos]
}

func (g *fakeGrid) IsLoaded(pos cube.Pos) bool { return !g.unloaded[pos] }
func (g *fakeGrid) Powered(pos cube.Pos) bool  { return g.powered[pos] }

func testRules() *Rules {
	return &Rules{
		Kind:        testKind,
		MinInterior: [3]int{1, 1, 1},
		MaxInterior: [3]int{3, 3, 3},
		Roles: map[PartType]Role{
			typeShell: RoleShell,
			typeCore:  RoleInterior,
		},
		Filler: func(role Role, _ cube.Pos, m Material) bool {
			return role == RoleInterior && m.Replaceable()
		},
	}
}

// shell registers a hollow cuboid of shell parts with corner min and size s.
func shell(reg *Registry, g *fakeGrid, min cube.Pos, s [3]int) {
	box := Box{Min: min, Max: cube.Pos{min[0] + s[0] - 1, min[1] + s[1] - 1, min[2] + s[2] - 1}}
	box.Each(func(p cube.Pos) bool {
		if box.Extremes(p) == 0 {
			return true
		}
		part := Part{Pos: p, Kind: testKind, Type: typeShell}
		reg.Add(part)
		g.parts[p] = part
		return true
	})
}

func remove(reg *Registry, g *fakeGrid, p cube.Pos) {
	reg.Remove(p)
	delete(g.parts, p)
}

type recordingMachine struct {
	calls    []string
	updates  int
	absorbed int
}

func (m *recordingMachine) OnAssembled(*Controller, any) { m.calls = append(m.calls, "assembled") }
func (m *recordingMachine) OnRestored(*Controller, any)  { m.calls = append(m.calls, "restored") }
func (m *recordingMachine) OnPaused(*Controller)         { m.calls = append(m.calls, "paused") }
func (m *recordingMachine) OnDisassembled(*Controller)   { m.calls = append(m.calls, "disassembled") }
func (m *recordingMachine) Update(context.Context, *Controller, uint64) {
	m.updates++
}
func (m *recordingMachine) Absorb(Machine)        { m.absorbed++ }
func (m *recordingMachine) Save() ([]byte, error) { return nil, nil }
func (m *recordingMachine) Load([]byte) error     { return nil }

func (m *recordingMachine) last() string {
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}
