package turbine

import (
	"fmt"

	"turbinecraft.ai/internal/sim/multiblock"
)

const Kind multiblock.Kind = "turbine"

const (
	Casing multiblock.PartType = iota + 1
	Glass
	Controller
	RotorShaft
	RotorBearing
	RotorBladeSteel
	RotorBladeExtreme
	RotorBladeSicSicCMC
	RotorStator
	DynamoCoil
	Inlet
	Outlet
)

var partNames = map[multiblock.PartType]string{
	Casing:              "casing",
	Glass:               "glass",
	Controller:          "controller",
	RotorShaft:          "rotor_shaft",
	RotorBearing:        "rotor_bearing",
	RotorBladeSteel:     "rotor_blade_steel",
	RotorBladeExtreme:   "rotor_blade_extreme",
	RotorBladeSicSicCMC: "rotor_blade_sic_sic_cmc",
	RotorStator:         "rotor_stator",
	DynamoCoil:          "dynamo_coil",
	Inlet:               "inlet",
	Outlet:              "outlet",
}

var partsByName = func() map[string]multiblock.PartType {
	m := make(map[string]multiblock.PartType, len(partNames))
	for t, n := range partNames {
		m[n] = t
	}
	return m
}()

// roles is where each part type may sit in the cuboid.
var roles = map[multiblock.PartType]multiblock.Role{
	Casing:              multiblock.RoleShell,
	Glass:               multiblock.RoleFaces,
	Controller:          multiblock.RoleFaces,
	RotorBearing:        multiblock.RoleFaces,
	DynamoCoil:          multiblock.RoleFaces,
	Inlet:               multiblock.RoleFaces,
	Outlet:              multiblock.RoleFaces,
	RotorShaft:          multiblock.RoleInterior,
	RotorBladeSteel:     multiblock.RoleInterior,
	RotorBladeExtreme:   multiblock.RoleInterior,
	RotorBladeSicSicCMC: multiblock.RoleInterior,
	RotorStator:         multiblock.RoleInterior,
}

// bladeIDs maps blade part types to their tuning ids.
var bladeIDs = map[multiblock.PartType]string{
	RotorBladeSteel:     "steel",
	RotorBladeExtreme:   "extreme",
	RotorBladeSicSicCMC: "sic_sic_cmc",
}

func PartName(t multiblock.PartType) string {
	if n, ok := partNames[t]; ok {
		return n
	}
	return fmt.Sprintf("part_%d", t)
}

func ParsePart(name string) (multiblock.PartType, bool) {
	t, ok := partsByName[name]
	return t, ok
}

func isRotorRing(t multiblock.PartType) bool {
	_, blade := bladeIDs[t]
	return blade || t == RotorStator
}
