package multiblock

import (
	"context"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Rules parameterizes the cuboid validator for one kind.
type Rules struct {
	Kind Kind

	// Interior lengths per axis (x, y, z). The exterior adds the two shell
	// cells. A zero max is unbounded.
	MinInterior [3]int
	MaxInterior [3]int

	// Roles lists where each part type may sit.
	Roles map[PartType]Role

	// Filler decides whether a cell with no part is acceptable for role.
	// A nil Filler rejects every empty cell.
	Filler func(role Role, pos cube.Pos, m Material) bool

	// Layout runs after the cuboid grammar passes and returns kind-specific
	// derived geometry.
	Layout func(ctx context.Context, s *Scan) (any, error)
}

func (r *Rules) MinSize(axis int) int { return r.MinInterior[axis] + 2 }

func (r *Rules) MaxSize(axis int) int {
	if r.MaxInterior[axis] <= 0 {
		return 0
	}
	return r.MaxInterior[axis] + 2
}

// MinimumParts is the shell volume of the smallest legal cuboid.
func (r *Rules) MinimumParts() int {
	return HollowVolume(r.MinSize(0), r.MinSize(1), r.MinSize(2))
}

func (r *Rules) allows(t PartType, role Role) bool {
	return r.Roles[t].Has(role)
}

// Scan is what a kind layout sees: the validated box and read access to parts.
type Scan struct {
	Rules    *Rules
	Registry *Registry
	Grid     Grid
	Box      Box
}

// PartAt prefers the registry and falls back to the grid.
func (s *Scan) PartAt(pos cube.Pos) (Part, bool) {
	if p, ok := s.Registry.Get(pos); ok {
		return p, true
	}
	if s.Grid == nil {
		return Part{}, false
	}
	return s.Grid.PartAt(pos)
}

// Is reports whether pos holds a part of this kind with type t.
func (s *Scan) Is(pos cube.Pos, t PartType) bool {
	p, ok := s.PartAt(pos)
	return ok && p.Kind == s.Rules.Kind && p.Type == t
}

func (s *Scan) MaterialAt(pos cube.Pos) Material {
	if s.Grid == nil {
		return MaterialAir | MaterialReplaceable
	}
	return s.Grid.MaterialAt(pos)
}
