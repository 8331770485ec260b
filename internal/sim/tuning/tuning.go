package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// MachineUpdateRate is divided by 4 to get the turbine update interval in ticks.
	MachineUpdateRate int `yaml:"machine_update_rate"`

	Turbine TurbineTuning `yaml:"turbine"`
}

type TurbineTuning struct {
	// Interior lengths per axis, ordered x, y, z. A zero max means unbounded.
	MinInterior [3]int `yaml:"min_interior"`
	MaxInterior [3]int `yaml:"max_interior"`

	StatorExpansion float64 `yaml:"stator_expansion"`
	MBPerBlade      int     `yaml:"mb_per_blade"`

	BaseMaxEnergy int `yaml:"base_max_energy"`
	BaseMaxInput  int `yaml:"base_max_input"`
	BaseMaxOutput int `yaml:"base_max_output"`

	Blades []BladeTuning `yaml:"blades"`
	Coils  []CoilTuning  `yaml:"coils"`
}

type BladeTuning struct {
	ID         string  `yaml:"id"` // "steel", "extreme", "sic_sic_cmc"
	Expansion  float64 `yaml:"expansion"`
	Efficiency float64 `yaml:"efficiency"`
}

type CoilTuning struct {
	ID           string            `yaml:"id"`
	Stage        int               `yaml:"stage"`
	Conductivity float64           `yaml:"conductivity"`
	Requires     []CoilRequirement `yaml:"requires"`
}

// CoilRequirement names a neighbour ("bearing" or a coil id) and how many
// valid ones must touch the coil.
type CoilRequirement struct {
	Neighbor string `yaml:"neighbor"`
	Count    int    `yaml:"count"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	t := Tuning{
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		MachineUpdateRate:  20,
		Turbine: TurbineTuning{
			MinInterior:     [3]int{3, 3, 3},
			MaxInterior:     [3]int{24, 24, 24},
			StatorExpansion: 0.75,
			MBPerBlade:      4,
			BaseMaxEnergy:   64000,
			BaseMaxInput:    4000,
			BaseMaxOutput:   16000,
		},
	}
	t.Normalize()
	return t
}

// Normalize fills zero values with defaults so partially specified files load.
func (t *Tuning) Normalize() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.SnapshotEveryTicks < 0 {
		t.SnapshotEveryTicks = 0
	}
	if t.MachineUpdateRate <= 0 {
		t.MachineUpdateRate = 20
	}
	tt := &t.Turbine
	for i := range tt.MinInterior {
		if tt.MinInterior[i] <= 0 {
			tt.MinInterior[i] = 1
		}
		if tt.MaxInterior[i] < 0 {
			tt.MaxInterior[i] = 0
		}
	}
	if tt.StatorExpansion <= 0 {
		tt.StatorExpansion = 0.75
	}
	if tt.MBPerBlade <= 0 {
		tt.MBPerBlade = 4
	}
	if tt.BaseMaxEnergy <= 0 {
		tt.BaseMaxEnergy = 64000
	}
	if tt.BaseMaxInput <= 0 {
		tt.BaseMaxInput = 4000
	}
	if tt.BaseMaxOutput <= 0 {
		tt.BaseMaxOutput = 16000
	}
	if len(tt.Blades) == 0 {
		tt.Blades = []BladeTuning{
			{ID: "steel", Expansion: 1.4, Efficiency: 1.0},
			{ID: "extreme", Expansion: 1.6, Efficiency: 1.1},
			{ID: "sic_sic_cmc", Expansion: 1.8, Efficiency: 1.2},
		}
	}
	if len(tt.Coils) == 0 {
		tt.Coils = []CoilTuning{
			{ID: "magnesium", Stage: 0, Conductivity: 0.88, Requires: []CoilRequirement{{Neighbor: "bearing", Count: 1}}},
			{ID: "beryllium", Stage: 1, Conductivity: 0.90, Requires: []CoilRequirement{{Neighbor: "magnesium", Count: 1}}},
			{ID: "gold", Stage: 2, Conductivity: 1.04, Requires: []CoilRequirement{{Neighbor: "beryllium", Count: 1}}},
			{ID: "copper", Stage: 3, Conductivity: 1.06, Requires: []CoilRequirement{{Neighbor: "gold", Count: 1}}},
			{ID: "silver", Stage: 3, Conductivity: 1.12, Requires: []CoilRequirement{{Neighbor: "gold", Count: 1}}},
			{ID: "aluminum", Stage: 4, Conductivity: 1.00, Requires: []CoilRequirement{{Neighbor: "magnesium", Count: 2}}},
		}
	}
}

func (t Tuning) Validate() error {
	tt := t.Turbine
	for i, axis := range []string{"x", "y", "z"} {
		if tt.MaxInterior[i] > 0 && tt.MaxInterior[i] < tt.MinInterior[i] {
			return fmt.Errorf("turbine: max_interior %s (%d) below min_interior (%d)", axis, tt.MaxInterior[i], tt.MinInterior[i])
		}
	}
	seen := map[string]bool{}
	for _, b := range tt.Blades {
		if b.ID == "" {
			return fmt.Errorf("turbine: blade with empty id")
		}
		if b.Expansion <= 0 {
			return fmt.Errorf("turbine: blade %s: expansion must be positive", b.ID)
		}
		seen[b.ID] = true
	}
	for _, id := range []string{"steel", "extreme", "sic_sic_cmc"} {
		if !seen[id] {
			return fmt.Errorf("turbine: missing blade %s", id)
		}
	}
	coils := map[string]bool{}
	for _, c := range tt.Coils {
		if c.ID == "" || c.ID == "bearing" {
			return fmt.Errorf("turbine: invalid coil id %q", c.ID)
		}
		if c.Stage < 0 || c.Stage > 4 {
			return fmt.Errorf("turbine: coil %s: stage %d out of range 0..4", c.ID, c.Stage)
		}
		coils[c.ID] = true
	}
	for _, c := range tt.Coils {
		for _, r := range c.Requires {
			if r.Neighbor != "bearing" && !coils[r.Neighbor] {
				return fmt.Errorf("turbine: coil %s requires unknown neighbor %s", c.ID, r.Neighbor)
			}
		}
	}
	return nil
}

// UpdateInterval is the number of ticks between turbine simulation steps.
func (t Tuning) UpdateInterval() int {
	n := t.MachineUpdateRate / 4
	if n < 1 {
		return 1
	}
	return n
}
