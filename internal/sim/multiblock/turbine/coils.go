package turbine

import (
	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/tuning"
)

const maxCoilStage = 4

// coilConductivity runs the staged placement passes over every dynamo coil
// and returns the mean conductivity per coil plus the coils that counted.
// A coil's rule only sees bearings and coils validated in earlier stages.
func coilConductivity(reg *multiblock.Registry, defs []tuning.CoilTuning) (float64, map[cube.Pos]string) {
	coils := reg.OfType(DynamoCoil)
	valid := map[cube.Pos]string{}
	if len(coils) == 0 {
		return 0, valid
	}
	byID := make(map[string]tuning.CoilTuning, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	sum := 0.0
	for stage := 0; stage <= maxCoilStage; stage++ {
		var passed []cube.Pos
		for _, pos := range coils {
			if _, done := valid[pos]; done {
				continue
			}
			part, _ := reg.Get(pos)
			def, ok := byID[part.Variant]
			if !ok || def.Stage != stage {
				continue
			}
			if coilPlaced(reg, pos, def, valid) {
				passed = append(passed, pos)
				sum += def.Conductivity
			}
		}
		for _, pos := range passed {
			part, _ := reg.Get(pos)
			valid[pos] = part.Variant
		}
	}
	return sum / float64(len(coils)), valid
}

func coilPlaced(reg *multiblock.Registry, pos cube.Pos, def tuning.CoilTuning, valid map[cube.Pos]string) bool {
	for _, req := range def.Requires {
		n := 0
		for _, f := range cube.Faces() {
			side := pos.Side(f)
			if req.Neighbor == "bearing" {
				if p, ok := reg.Get(side); ok && p.Type == RotorBearing {
					n++
				}
				continue
			}
			if valid[side] == req.Neighbor {
				n++
			}
		}
		if n < req.Count {
			return false
		}
	}
	return true
}
