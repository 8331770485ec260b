package turbine

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"google.golang.org/protobuf/encoding/protowire"

	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/tuning"
)

const steam = "high_pressure_steam"

func topUp(tb *Turbine, n int) {
	if d := n - tb.Input.Amount(); d > 0 {
		tb.Input.Fill(steam, d)
	}
}

func TestTurbine_AssemblesWithGeometry(t *testing.T) {
	c, tb := assemble(steelTurbine())
	c.Tick(context.Background(), 1)
	if !c.IsAssembled() {
		t.Fatalf("state: got %s err=%v", c.State(), c.LastError())
	}
	if tb.ShaftWidth() != 1 || tb.FlowLength() != 3 || tb.BladeSets() != 3 || tb.BladeLength() != 1 {
		t.Fatalf("geometry: got width=%d length=%d sets=%d blade=%d", tb.ShaftWidth(), tb.FlowLength(), tb.BladeSets(), tb.BladeLength())
	}
	if dir, ok := tb.FlowDir(); !ok || dir != cube.FaceUp {
		t.Fatalf("flow dir: got %v %v", dir, ok)
	}
	if got, want := tb.MaxRecipeRateMultiplier(), 48; got != want {
		t.Fatalf("max recipe rate: got %d want %d", got, want)
	}
	if math.Abs(tb.RawConductivity()-0.88) > 1e-9 {
		t.Fatalf("raw conductivity: got %v want 0.88", tb.RawConductivity())
	}
	// One coil for two bearings.
	if math.Abs(tb.EffectiveConductivity()-0.44) > 1e-9 {
		t.Fatalf("effective conductivity: got %v want 0.44", tb.EffectiveConductivity())
	}
	n := c.Registry().Len()
	if got, want := tb.Input.Capacity(), tuning.Defaults().Turbine.BaseMaxInput*n; got != want {
		t.Fatalf("input capacity: got %d want %d", got, want)
	}
}

func TestTurbine_UnpoweredStaysOff(t *testing.T) {
	c, tb := assemble(steelTurbine())
	tb.Input.Fill(steam, 1000)
	for tick := uint64(1); tick <= 20; tick++ {
		c.Tick(context.Background(), tick)
	}
	if tb.IsOn() || tb.Power() != 0 || tb.Energy.Stored() != 0 {
		t.Fatalf("unpowered: on=%v power=%v energy=%d", tb.IsOn(), tb.Power(), tb.Energy.Stored())
	}
	if tb.Input.Amount() != 1000 {
		t.Fatalf("input consumed while off: got %d", tb.Input.Amount())
	}
}

func TestTurbine_PowerRisesTowardTarget(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 1000)

	c.Tick(context.Background(), 1)
	if !tb.IsOn() {
		t.Fatalf("turbine not on")
	}
	if got, want := tb.RecipeRate(), 240; got != want {
		t.Fatalf("recipe rate: got %d want %d", got, want)
	}
	if got, want := tb.ActualInputRate(), 48; got != want {
		t.Fatalf("input rate: got %d want %d", got, want)
	}
	if got, want := tb.Input.Amount(), 760; got != want {
		t.Fatalf("input left: got %d want %d", got, want)
	}
	if tb.Output.Fluid() != "exhaust_steam" || tb.Output.Amount() != 960 {
		t.Fatalf("output: got %s %d", tb.Output.Fluid(), tb.Output.Amount())
	}
	target := tb.MaxProcessPower()
	if target <= 0 {
		t.Fatalf("target power: got %v", target)
	}
	// Shaft volume 3: the first step covers a quarter of the gap.
	if math.Abs(tb.Power()-target/4) > 1e-9 {
		t.Fatalf("first power: got %v want %v", tb.Power(), target/4)
	}
	if tb.Energy.Stored() != int(tb.Power()) {
		t.Fatalf("energy: got %d want %d", tb.Energy.Stored(), int(tb.Power()))
	}

	prev := tb.Power()
	prevEnergy := tb.Energy.Stored()
	for tick := uint64(2); tick <= 200; tick++ {
		topUp(tb, 1000)
		c.Tick(context.Background(), tick)
		if tb.Power() < prev {
			t.Fatalf("tick %d: power fell from %v to %v", tick, prev, tb.Power())
		}
		if tb.Power() > target+1e-9 {
			t.Fatalf("tick %d: power %v above target %v", tick, tb.Power(), target)
		}
		if tb.Energy.Stored() <= prevEnergy {
			t.Fatalf("tick %d: energy did not grow: %d", tick, tb.Energy.Stored())
		}
		prev, prevEnergy = tb.Power(), tb.Energy.Stored()
	}
	if target-tb.Power() > target*0.01 {
		t.Fatalf("power did not converge: got %v target %v", tb.Power(), target)
	}
}

func TestTurbine_DecaysWithoutInput(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 1000)
	for tick := uint64(1); tick <= 50; tick++ {
		topUp(tb, 1000)
		c.Tick(context.Background(), tick)
	}
	peak := tb.Power()
	tb.Input.Set("", 0)
	for tick := uint64(51); tick <= 60; tick++ {
		c.Tick(context.Background(), tick)
	}
	if tb.Power() >= peak || tb.Power() <= 0 {
		t.Fatalf("decay: got %v from peak %v", tb.Power(), peak)
	}
	if tb.RecipeRate() != 0 {
		t.Fatalf("recipe rate: got %d want 0", tb.RecipeRate())
	}
}

func TestTurbine_ZeroInputRecipeIsIdle(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 100)

	// A recipe that slipped past the catalog loader must not be processed.
	tb.recipe = &catalogs.RecipeDef{
		RecipeID: "free",
		Input:    catalogs.FluidStack{Fluid: steam, Amount: 0},
		Output:   catalogs.FluidStack{Fluid: "exhaust_steam", Amount: 4},
	}
	tb.on = true
	if tb.canProcessInputs() {
		t.Fatalf("zero input recipe accepted")
	}

	free := catalogs.NewRecipeCatalog(*tb.recipe)
	tb.recipes = &free
	tb.recipe = nil
	for tick := uint64(1); tick <= 3; tick++ {
		c.Tick(context.Background(), tick)
	}
	if tb.RecipeRate() != 0 || tb.Power() != 0 {
		t.Fatalf("idle: got rate=%d power=%v", tb.RecipeRate(), tb.Power())
	}
	if got := tb.Input.Amount(); got != 100 {
		t.Fatalf("input: got %d want 100", got)
	}
}

func TestTurbine_ControllerRemovalResets(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 1000)
	for tick := uint64(1); tick <= 10; tick++ {
		c.Tick(context.Background(), tick)
	}
	if tb.Power() <= 0 {
		t.Fatalf("power before removal: got %v", tb.Power())
	}

	delete(g.parts, controllerPos)
	c.Detach(controllerPos)
	c.Tick(context.Background(), 11)

	if c.State() != multiblock.Disassembled {
		t.Fatalf("state: got %s", c.State())
	}
	if tb.Power() != 0 {
		t.Fatalf("power: got %v want 0", tb.Power())
	}
	if _, ok := tb.FlowDir(); ok {
		t.Fatalf("flow dir still set")
	}
	if tb.TotalExpansion() != 1 || len(tb.ExpansionLevels()) != 0 || len(tb.BladeEfficiencies()) != 0 {
		t.Fatalf("expansion: got %v levels=%v eff=%v", tb.TotalExpansion(), tb.ExpansionLevels(), tb.BladeEfficiencies())
	}
}

func TestTurbine_Broadcasts(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	bc := &recordingBroadcaster{}
	c, tb := assemble(g, multiblock.WithBroadcaster(bc))
	tb.Input.Fill(steam, 1000)

	c.Tick(context.Background(), 1)
	if bc.all != 1 || bc.listening != 1 {
		t.Fatalf("first tick: all=%d listening=%d", bc.all, bc.listening)
	}
	for tick := uint64(2); tick <= 5; tick++ {
		c.Tick(context.Background(), tick)
	}
	if bc.listening != 1 {
		t.Fatalf("between updates: listening=%d want 1", bc.listening)
	}
	c.Tick(context.Background(), 6)
	if bc.listening != 2 {
		t.Fatalf("next update: listening=%d want 2", bc.listening)
	}
	p, err := UnmarshalPacket(bc.last)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.On || p.Controller != controllerPos || p.FlowDir != int(cube.FaceUp) {
		t.Fatalf("packet: got %+v", p)
	}

	delete(g.powered, controllerPos)
	c.Tick(context.Background(), 7)
	if bc.all != 2 {
		t.Fatalf("power off: all=%d want 2", bc.all)
	}
}

func TestTurbine_StateRoundTrip(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 1000)
	for tick := uint64(1); tick <= 7; tick++ {
		c.Tick(context.Background(), tick)
	}
	b, err := tb.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New(tuning.Defaults(), testRecipes())
	if err := restored.Load(b); err != nil {
		t.Fatalf("load: %v", err)
	}
	b2, err := restored.Save()
	if err != nil {
		t.Fatalf("save restored: %v", err)
	}
	if !bytes.Equal(b, b2) {
		t.Fatalf("round trip:\n got %s\nwant %s", b2, b)
	}
	if restored.Power() != tb.Power() || restored.Input.Amount() != tb.Input.Amount() {
		t.Fatalf("restored: power=%v input=%d", restored.Power(), restored.Input.Amount())
	}
}

func TestDecodeState_MissingKeysKeepDefaults(t *testing.T) {
	s, err := DecodeState([]byte(`{"v":1,"power":12.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Power != 12.5 {
		t.Fatalf("power: got %v", s.Power)
	}
	if s.FlowDir != -1 || s.TotalExpansion != 1 || s.IdealTotalExpansion != 1 {
		t.Fatalf("defaults: got %+v", s)
	}

	if _, err := DecodeState([]byte(`{"v":2}`)); err == nil {
		t.Fatalf("expected error for newer version")
	}
	if _, err := DecodeState([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestPacket_RoundTripSkipsUnknownFields(t *testing.T) {
	p := UpdatePacket{
		Controller:          cube.Pos{-3, 64, 12},
		On:                  true,
		Power:               211.75,
		RawConductivity:     0.88,
		TotalExpansion:      2.744,
		IdealTotalExpansion: 4,
		RecipeRate:          240,
		ShaftWidth:          1,
		BladeLength:         1,
		BladeSets:           3,
		Capacity:            7232000,
		Energy:              5120,
		FlowDir:             int(cube.FaceUp),
	}
	b := p.Marshal()
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	got, err := UnmarshalPacket(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != p {
		t.Fatalf("packet:\n got %+v\nwant %+v", got, p)
	}

	if _, err := UnmarshalPacket(b[:len(b)-3]); err == nil {
		t.Fatalf("expected error for truncated packet")
	}
}

func TestPacket_ApplyMirrorsServer(t *testing.T) {
	g := steelTurbine()
	g.powered[controllerPos] = true
	c, tb := assemble(g)
	tb.Input.Fill(steam, 1000)
	c.Tick(context.Background(), 1)

	mirror := New(tuning.Defaults(), testRecipes())
	p, err := UnmarshalPacket(tb.Packet().Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	mirror.ApplyPacket(p)
	if mirror.Power() != tb.Power() || mirror.BladeSets() != 3 || mirror.Energy.Stored() != tb.Energy.Stored() {
		t.Fatalf("mirror: power=%v sets=%d energy=%d", mirror.Power(), mirror.BladeSets(), mirror.Energy.Stored())
	}
	if dir, ok := mirror.FlowDir(); !ok || dir != cube.FaceUp {
		t.Fatalf("mirror flow: got %v %v", dir, ok)
	}
}

func TestTurbine_AbsorbMergesResources(t *testing.T) {
	cfg := tuning.Defaults()
	a := New(cfg, testRecipes())
	b := New(cfg, testRecipes())
	a.Energy.SetStored(100)
	b.Energy.SetStored(50)
	a.Input.Fill(steam, 300)
	b.Input.Fill(steam, 200)
	b.Output.Fill("exhaust_steam", 40)

	a.Absorb(b)
	if a.Energy.Stored() != 150 || b.Energy.Stored() != 0 {
		t.Fatalf("energy: got %d/%d", a.Energy.Stored(), b.Energy.Stored())
	}
	if a.Energy.Capacity() != 2*cfg.Turbine.BaseMaxEnergy {
		t.Fatalf("energy capacity: got %d", a.Energy.Capacity())
	}
	if a.Input.Amount() != 500 || !b.Input.IsEmpty() {
		t.Fatalf("input: got %d/%d", a.Input.Amount(), b.Input.Amount())
	}
	if a.Output.Fluid() != "exhaust_steam" || a.Output.Amount() != 40 {
		t.Fatalf("output: got %s %d", a.Output.Fluid(), a.Output.Amount())
	}
}
