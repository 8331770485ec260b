package turbine

import (
	"context"
	"math"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/resource"
	"turbinecraft.ai/internal/sim/tuning"
)

// Turbine is the machine behind an assembled turbine controller. It turns
// input fluid into output fluid and power.
type Turbine struct {
	cfg     tuning.Tuning
	recipes *catalogs.RecipeCatalog

	Energy *resource.EnergyStorage
	Input  *resource.Tank
	Output *resource.Tank

	controller cube.Pos
	on         bool

	power           float64
	rawConductivity float64
	flowDir         cube.Face
	hasFlow         bool
	flowLength      int
	shaftWidth      int
	shaftVolume     int
	bladeLength     int
	bladeSets       int
	recipeRate      int

	totalExpansion      float64
	idealTotalExpansion float64
	basePowerPerMB      float64
	expansionLevels     []float64
	bladeEfficiencies   []float64

	bearings int
	coils    int

	recipe      *catalogs.RecipeDef
	updateCount int
}

func New(cfg tuning.Tuning, recipes *catalogs.RecipeCatalog) *Turbine {
	t := &Turbine{
		cfg:     cfg,
		recipes: recipes,
		Energy:  resource.NewEnergyStorage(cfg.Turbine.BaseMaxEnergy),
		Input:   resource.NewTank(cfg.Turbine.BaseMaxInput, recipes.InputFluids()),
		Output:  resource.NewTank(cfg.Turbine.BaseMaxOutput, nil),
	}
	t.reset()
	return t
}

func (t *Turbine) reset() {
	t.on = false
	t.power, t.rawConductivity = 0, 0
	t.flowDir, t.hasFlow = 0, false
	t.flowLength, t.shaftWidth, t.shaftVolume, t.bladeLength, t.bladeSets, t.recipeRate = 0, 0, 0, 0, 0, 0
	t.totalExpansion, t.idealTotalExpansion = 1, 1
	t.basePowerPerMB = 0
	t.expansionLevels = []float64{}
	t.bladeEfficiencies = []float64{}
}

func (t *Turbine) IsOn() bool                   { return t.on }
func (t *Turbine) Power() float64               { return t.power }
func (t *Turbine) RawConductivity() float64     { return t.rawConductivity }
func (t *Turbine) FlowDir() (cube.Face, bool)   { return t.flowDir, t.hasFlow }
func (t *Turbine) FlowLength() int              { return t.flowLength }
func (t *Turbine) ShaftWidth() int              { return t.shaftWidth }
func (t *Turbine) ShaftVolume() int             { return t.shaftVolume }
func (t *Turbine) BladeLength() int             { return t.bladeLength }
func (t *Turbine) BladeSets() int               { return t.bladeSets }
func (t *Turbine) RecipeRate() int              { return t.recipeRate }
func (t *Turbine) TotalExpansion() float64      { return t.totalExpansion }
func (t *Turbine) IdealTotalExpansion() float64 { return t.idealTotalExpansion }
func (t *Turbine) BasePowerPerMB() float64      { return t.basePowerPerMB }
func (t *Turbine) ExpansionLevels() []float64   { return append([]float64(nil), t.expansionLevels...) }
func (t *Turbine) BladeEfficiencies() []float64 { return append([]float64(nil), t.bladeEfficiencies...) }
func (t *Turbine) ControllerPos() cube.Pos      { return t.controller }

// BladeVolume is the number of blade cells across all blade sets.
func (t *Turbine) BladeVolume() int { return 4 * t.shaftWidth * t.bladeLength * t.bladeSets }

// MaxRecipeRateMultiplier is the per-tick throughput ceiling in recipe units.
func (t *Turbine) MaxRecipeRateMultiplier() int { return t.BladeVolume() * t.cfg.Turbine.MBPerBlade }

// ActualInputRate is the current recipe rate per tick, rounded.
func (t *Turbine) ActualInputRate() int {
	return int(math.Round(float64(t.recipeRate) / float64(t.updateInterval())))
}

func (t *Turbine) updateInterval() int { return t.cfg.UpdateInterval() }

func (t *Turbine) OnAssembled(c *multiblock.Controller, layout any) { t.formed(c, layout) }
func (t *Turbine) OnRestored(c *multiblock.Controller, layout any)  { t.formed(c, layout) }
func (t *Turbine) OnPaused(*multiblock.Controller)                  {}

func (t *Turbine) OnDisassembled(*multiblock.Controller) { t.reset() }

func (t *Turbine) formed(c *multiblock.Controller, layout any) {
	if l, ok := layout.(*Layout); ok {
		t.controller = l.Controller
		t.flowDir, t.hasFlow = l.FlowDir, true
		t.flowLength = l.FlowLength
		t.shaftWidth = l.ShaftWidth
		t.shaftVolume = l.ShaftVolume
		t.bladeLength = l.BladeLength
		t.bladeSets = l.BladeSets
		t.totalExpansion = l.TotalExpansion
		t.expansionLevels = append([]float64(nil), l.ExpansionLevels...)
		t.bladeEfficiencies = append([]float64(nil), l.BladeEfficiencies...)
	}
	reg := c.Registry()
	n := reg.Len()
	tt := t.cfg.Turbine
	t.Energy.SetCapacity(tt.BaseMaxEnergy * n)
	t.Input.SetCapacity(tt.BaseMaxInput * n)
	t.Output.SetCapacity(tt.BaseMaxOutput * n)

	t.bearings = reg.Count(RotorBearing)
	t.coils = reg.Count(DynamoCoil)
	t.rawConductivity, _ = coilConductivity(reg, tt.Coils)
}

// Update advances one tick. Simulation work runs every updateInterval ticks;
// energy accrues every tick.
func (t *Turbine) Update(_ context.Context, c *multiblock.Controller, _ uint64) {
	wasOn := t.on
	t.on = c.IsAssembled() && c.Grid() != nil && c.Grid().Powered(t.controller)
	if t.on != wasOn {
		c.BroadcastAll(t.Packet().Marshal())
	}

	due := t.updateCount == 0
	if due {
		t.refreshRecipe()
		prev := t.power
		if t.canProcessInputs() {
			t.produceProducts()
			t.power = t.nextPower(prev, true)
		} else {
			t.power = t.nextPower(prev, false)
		}
	}
	t.Energy.Change(int(t.power))
	if due {
		c.BroadcastListening(t.Packet().Marshal())
	}
	t.updateCount = (t.updateCount + 1) % t.updateInterval()
}

func (t *Turbine) refreshRecipe() {
	if t.recipe != nil && t.recipe.Matches(t.Input.Fluid(), t.Input.Amount()) {
		return
	}
	t.recipe = nil
	if r, ok := t.recipes.Match(t.Input.Fluid(), t.Input.Amount()); ok {
		t.recipe = &r
	}
}

func (t *Turbine) canProcessInputs() bool {
	if !t.on || !t.setRecipeStats() {
		return false
	}
	return t.canProduceProducts()
}

func (t *Turbine) setRecipeStats() bool {
	if t.recipe == nil || t.recipe.Input.Amount <= 0 {
		t.recipeRate = 0
		t.basePowerPerMB = 0
		t.idealTotalExpansion = 1
		return false
	}
	t.basePowerPerMB = t.recipe.PowerPerMB
	t.idealTotalExpansion = math.Max(1, float64(t.recipe.Output.Amount)/float64(t.recipe.Input.Amount))
	return true
}

func (t *Turbine) canProduceProducts() bool {
	out := t.recipe.Output
	if out.Amount <= 0 || out.Fluid == "" || t.recipe.Input.Amount <= 0 {
		return false
	}
	t.recipeRate = min(t.Input.Amount()/t.recipe.Input.Amount, t.MaxRecipeRateMultiplier()*t.updateInterval())
	if !t.Output.IsEmpty() {
		if t.Output.Fluid() != out.Fluid {
			return false
		}
		if t.Output.Amount()+out.Amount*t.recipeRate > t.Output.Capacity() {
			return false
		}
	}
	return true
}

func (t *Turbine) produceProducts() {
	if n := t.recipe.Input.Amount * t.recipeRate; n > 0 {
		t.Input.Drain(n)
	}
	if n := t.recipe.Output.Amount * t.recipeRate; n > 0 {
		t.Output.Fill(t.recipe.Output.Fluid, n)
	}
}

func (t *Turbine) nextPower(prev float64, increasing bool) float64 {
	sv := float64(t.shaftVolume)
	if increasing {
		return (sv*prev + t.MaxProcessPower()) / (sv + 1)
	}
	root := math.Sqrt(sv)
	return root * prev / (root + 1)
}

// MaxProcessPower is the power the turbine approaches under the current recipe rate.
func (t *Turbine) MaxProcessPower() float64 {
	if t.bladeSets == 0 || len(t.expansionLevels) == 0 {
		return 0
	}
	blade := 0.0
	for d, eff := range t.bladeEfficiencies {
		if eff <= 0 || d >= len(t.expansionLevels) {
			continue
		}
		blade += eff * ideality(t.idealExpansion(d), t.expansionLevels[d])
	}
	blade /= float64(t.bladeSets)
	return blade * ideality(t.idealTotalExpansion, t.totalExpansion) * t.EffectiveConductivity() *
		(float64(t.recipeRate) / float64(t.updateInterval())) * t.basePowerPerMB
}

func (t *Turbine) idealExpansion(depth int) float64 {
	return math.Pow(t.idealTotalExpansion, (float64(depth)+0.5)/float64(len(t.expansionLevels)))
}

// EffectiveConductivity scales raw conductivity down when there are fewer coils than bearings.
func (t *Turbine) EffectiveConductivity() float64 {
	if t.bearings == 0 || t.coils == 0 {
		return 0
	}
	if t.coils >= t.bearings {
		return t.rawConductivity
	}
	return t.rawConductivity * float64(t.coils) / float64(t.bearings)
}

// ideality is min/max of the two values, 0 when either is non-positive.
func ideality(ideal, actual float64) float64 {
	if ideal <= 0 || actual <= 0 {
		return 0
	}
	if ideal < actual {
		return ideal / actual
	}
	return actual / ideal
}

// Absorb moves energy and tank contents from an assimilated turbine. Tank
// contents of a different fluid are lost.
func (t *Turbine) Absorb(other multiblock.Machine) {
	o, ok := other.(*Turbine)
	if !ok || o == t {
		return
	}
	t.Energy.SetCapacity(t.Energy.Capacity() + o.Energy.Capacity())
	t.Energy.Change(o.Energy.Stored())
	o.Energy.SetStored(0)

	for _, pair := range [][2]*resource.Tank{{t.Input, o.Input}, {t.Output, o.Output}} {
		dst, src := pair[0], pair[1]
		dst.SetCapacity(dst.Capacity() + src.Capacity())
		if !src.IsEmpty() {
			dst.Fill(src.Fluid(), src.Amount())
		}
		src.Set("", 0)
	}
}
