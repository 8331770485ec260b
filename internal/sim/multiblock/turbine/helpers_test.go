package turbine

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"

	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/tuning"
)

type testGrid struct {
	parts   map[cube.Pos]multiblock.Part
	solid   map[cube.Pos]bool
	powered map[cube.Pos]bool
}

func newTestGrid() *testGrid {
	return &testGrid{
		parts:   map[cube.Pos]multiblock.Part{},
		solid:   map[cube.Pos]bool{},
		powered: map[cube.Pos]bool{},
	}
}

func (g *testGrid) PartAt(pos cube.Pos) (multiblock.Part, bool) {
	p, ok := g.parts[pos]
	return p, ok
}

func (g *testGrid) MaterialAt(pos cube.Pos) multiblock.Material {
	if g.solid[pos] {
		return multiblock.MaterialSolid
	}
	return multiblock.MaterialAir | multiblock.MaterialReplaceable
}

func (g *testGrid) IsAir(pos cube.Pos) bool {
	_, ok := g.parts[pos]
	return !ok && !g.solid[pos]
}

func (g *testGrid) IsLoaded(cube.Pos) bool    { return true }
func (g *testGrid) Powered(pos cube.Pos) bool { return g.powered[pos] }

func (g *testGrid) set(pos cube.Pos, t multiblock.PartType, variant string) {
	g.parts[pos] = multiblock.Part{Pos: pos, Kind: Kind, Type: t, Variant: variant}
}

var controllerPos = cube.Pos{0, 2, 2}

// steelTurbine lays out a 5x5x5 turbine: a 1x1 bearing column along Y, inlet
// on the bottom wall, outlet on the top wall, steel blades on every depth and
// one magnesium coil next to the bottom bearing.
func steelTurbine() *testGrid {
	g := newTestGrid()
	box := multiblock.Box{Max: cube.Pos{4, 4, 4}}
	box.Each(func(p cube.Pos) bool {
		if box.Extremes(p) > 0 {
			g.set(p, Casing, "")
		}
		return true
	})
	g.set(cube.Pos{2, 0, 2}, RotorBearing, "")
	g.set(cube.Pos{2, 4, 2}, RotorBearing, "")
	g.set(cube.Pos{1, 0, 1}, Inlet, "")
	g.set(cube.Pos{1, 4, 1}, Outlet, "")
	g.set(cube.Pos{2, 0, 1}, DynamoCoil, "magnesium")
	g.set(controllerPos, Controller, "")
	for y := 1; y <= 3; y++ {
		g.set(cube.Pos{2, y, 2}, RotorShaft, "")
		for _, p := range []cube.Pos{{1, y, 2}, {3, y, 2}, {2, y, 1}, {2, y, 3}} {
			g.set(p, RotorBladeSteel, "")
		}
	}
	return g
}

func testRecipes() *catalogs.RecipeCatalog {
	c := catalogs.NewRecipeCatalog(catalogs.RecipeDef{
		RecipeID:   "high_pressure_steam",
		Input:      catalogs.FluidStack{Fluid: "high_pressure_steam", Amount: 1},
		Output:     catalogs.FluidStack{Fluid: "exhaust_steam", Amount: 4},
		PowerPerMB: 16,
	})
	return &c
}

type recordingBroadcaster struct {
	listening int
	all       int
	last      []byte
}

func (b *recordingBroadcaster) BroadcastListening(_ uuid.UUID, payload []byte) {
	b.listening++
	b.last = payload
}

func (b *recordingBroadcaster) BroadcastAll(_ uuid.UUID, payload []byte) {
	b.all++
	b.last = payload
}

// assemble registers every turbine part of g with a fresh controller.
func assemble(g *testGrid, opts ...multiblock.Option) (*multiblock.Controller, *Turbine) {
	cfg := tuning.Defaults()
	tb := New(cfg, testRecipes())
	c := multiblock.NewController(NewRules(cfg.Turbine), g, tb, opts...)
	for _, p := range g.parts {
		c.Attach(p)
	}
	return c, tb
}
