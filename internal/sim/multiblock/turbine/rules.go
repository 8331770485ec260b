package turbine

import (
	"context"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/tuning"
)

// NewRules builds the cuboid rules for turbines from tuning.
func NewRules(tt tuning.TurbineTuning) *multiblock.Rules {
	blades := map[string]tuning.BladeTuning{}
	for _, b := range tt.Blades {
		blades[b.ID] = b
	}
	lc := layoutConfig{blades: blades, statorExpansion: tt.StatorExpansion}
	return &multiblock.Rules{
		Kind:        Kind,
		MinInterior: tt.MinInterior,
		MaxInterior: tt.MaxInterior,
		Roles:       roles,
		Filler: func(role multiblock.Role, _ cube.Pos, m multiblock.Material) bool {
			return role == multiblock.RoleInterior && m.Replaceable()
		},
		Layout: func(_ context.Context, s *multiblock.Scan) (any, error) {
			l, verr := computeLayout(s, lc)
			if verr != nil {
				return nil, verr
			}
			return l, nil
		},
	}
}
