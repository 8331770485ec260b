package turbine

import (
	"encoding/json"
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/resource"
)

// StateV1 is the persisted record of a turbine. Decoding starts from
// DefaultState, so keys missing from older records keep their defaults.
type StateV1 struct {
	Version int `json:"v"`

	EnergyStored   int      `json:"energy,omitempty"`
	EnergyCapacity int      `json:"energy_capacity,omitempty"`
	Tanks          []TankV1 `json:"tanks,omitempty"`

	On              bool    `json:"on,omitempty"`
	Power           float64 `json:"power,omitempty"`
	RawConductivity float64 `json:"raw_conductivity,omitempty"`
	// FlowDir is a cube.Face index, -1 when unset.
	FlowDir     int `json:"flow_dir"`
	FlowLength  int `json:"flow_length,omitempty"`
	ShaftWidth  int `json:"shaft_width,omitempty"`
	ShaftVolume int `json:"shaft_volume,omitempty"`
	BladeLength int `json:"blade_length,omitempty"`
	BladeSets   int `json:"blade_sets,omitempty"`
	RecipeRate  int `json:"recipe_rate,omitempty"`

	TotalExpansion      float64   `json:"total_expansion,omitempty"`
	IdealTotalExpansion float64   `json:"ideal_total_expansion,omitempty"`
	BasePowerPerMB      float64   `json:"base_power_per_mb,omitempty"`
	ExpansionLevels     []float64 `json:"expansion_levels,omitempty"`
	BladeEfficiencies   []float64 `json:"blade_efficiencies,omitempty"`

	Bearings    int    `json:"bearings,omitempty"`
	Coils       int    `json:"coils,omitempty"`
	Controller  [3]int `json:"controller"`
	UpdateCount int    `json:"update_count,omitempty"`
}

type TankV1 struct {
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

const stateVersion = 1

func DefaultState() StateV1 {
	return StateV1{
		Version:             stateVersion,
		FlowDir:             -1,
		TotalExpansion:      1,
		IdealTotalExpansion: 1,
	}
}

func DecodeState(b []byte) (StateV1, error) {
	s := DefaultState()
	if err := json.Unmarshal(b, &s); err != nil {
		return DefaultState(), fmt.Errorf("turbine state: %w", err)
	}
	if s.Version > stateVersion {
		return DefaultState(), fmt.Errorf("turbine state: unsupported version %d", s.Version)
	}
	return s, nil
}

func (t *Turbine) State() StateV1 {
	s := DefaultState()
	s.EnergyStored = t.Energy.Stored()
	s.EnergyCapacity = t.Energy.Capacity()
	s.Tanks = []TankV1{
		{Fluid: t.Input.Fluid(), Amount: t.Input.Amount(), Capacity: t.Input.Capacity()},
		{Fluid: t.Output.Fluid(), Amount: t.Output.Amount(), Capacity: t.Output.Capacity()},
	}
	s.On = t.on
	s.Power = t.power
	s.RawConductivity = t.rawConductivity
	if t.hasFlow {
		s.FlowDir = int(t.flowDir)
	}
	s.FlowLength = t.flowLength
	s.ShaftWidth = t.shaftWidth
	s.ShaftVolume = t.shaftVolume
	s.BladeLength = t.bladeLength
	s.BladeSets = t.bladeSets
	s.RecipeRate = t.recipeRate
	s.TotalExpansion = t.totalExpansion
	s.IdealTotalExpansion = t.idealTotalExpansion
	s.BasePowerPerMB = t.basePowerPerMB
	s.ExpansionLevels = append([]float64(nil), t.expansionLevels...)
	s.BladeEfficiencies = append([]float64(nil), t.bladeEfficiencies...)
	s.Bearings = t.bearings
	s.Coils = t.coils
	s.Controller = [3]int(t.controller)
	s.UpdateCount = t.updateCount
	return s
}

// SetState replaces the turbine's state. Tanks restore empty when their
// fluid is blank or amount is zero.
func (t *Turbine) SetState(s StateV1) {
	if s.EnergyCapacity > 0 {
		t.Energy.SetCapacity(s.EnergyCapacity)
	}
	t.Energy.SetStored(s.EnergyStored)
	restoreTank(t.Input, s.Tanks, 0)
	restoreTank(t.Output, s.Tanks, 1)
	t.on = s.On
	t.power = s.Power
	t.rawConductivity = s.RawConductivity
	if s.FlowDir >= 0 && s.FlowDir < len(cube.Faces()) {
		t.flowDir, t.hasFlow = cube.Face(s.FlowDir), true
	} else {
		t.flowDir, t.hasFlow = 0, false
	}
	t.flowLength = s.FlowLength
	t.shaftWidth = s.ShaftWidth
	t.shaftVolume = s.ShaftVolume
	t.bladeLength = s.BladeLength
	t.bladeSets = s.BladeSets
	t.recipeRate = s.RecipeRate
	t.totalExpansion = s.TotalExpansion
	t.idealTotalExpansion = s.IdealTotalExpansion
	t.basePowerPerMB = s.BasePowerPerMB
	t.expansionLevels = append([]float64{}, s.ExpansionLevels...)
	t.bladeEfficiencies = append([]float64{}, s.BladeEfficiencies...)
	t.bearings = s.Bearings
	t.coils = s.Coils
	t.controller = cube.Pos(s.Controller)
	t.updateCount = 0
	if iv := t.updateInterval(); s.UpdateCount > 0 && s.UpdateCount < iv {
		t.updateCount = s.UpdateCount
	}
	t.recipe = nil
}

func restoreTank(dst *resource.Tank, tanks []TankV1, i int) {
	if i >= len(tanks) {
		dst.Set("", 0)
		return
	}
	if tanks[i].Capacity > 0 {
		dst.SetCapacity(tanks[i].Capacity)
	}
	dst.Set(tanks[i].Fluid, tanks[i].Amount)
}

func (t *Turbine) Save() ([]byte, error) {
	return json.Marshal(t.State())
}

func (t *Turbine) Load(b []byte) error {
	s, err := DecodeState(b)
	if err != nil {
		return err
	}
	t.SetState(s)
	return nil
}
