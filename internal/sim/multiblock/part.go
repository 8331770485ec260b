package multiblock

import (
	"github.com/df-mc/dragonfly/server/block/cube"
)

// Kind names a multiblock family, e.g. "turbine".
type Kind string

// PartType is a per-kind closed enumeration tagged on a part at registration.
type PartType uint8

type Part struct {
	Pos     cube.Pos
	Kind    Kind
	Type    PartType
	Variant string
}

// Role is the geometric position a cell occupies inside a cuboid.
type Role uint8

const (
	RoleFrame Role = 1 << iota
	RoleTop
	RoleBottom
	RoleSides
	RoleInterior
)

const (
	RoleFaces = RoleTop | RoleBottom | RoleSides
	RoleShell = RoleFrame | RoleFaces
)

func (r Role) Has(o Role) bool { return r&o != 0 }

func (r Role) String() string {
	switch r {
	case RoleFrame:
		return "frame"
	case RoleTop:
		return "top"
	case RoleBottom:
		return "bottom"
	case RoleSides:
		return "sides"
	case RoleInterior:
		return "interior"
	default:
		return "mixed"
	}
}

// Material carries the flags a non-part cell exposes to the validator.
type Material uint8

const (
	MaterialAir Material = 1 << iota
	MaterialSolid
	MaterialReplaceable
)

func (m Material) Air() bool         { return m&MaterialAir != 0 }
func (m Material) Solid() bool       { return m&MaterialSolid != 0 }
func (m Material) Replaceable() bool { return m&MaterialReplaceable != 0 }

// Grid is the read-only voxel view the validator scans.
type Grid interface {
	PartAt(pos cube.Pos) (Part, bool)
	MaterialAt(pos cube.Pos) Material
	IsAir(pos cube.Pos) bool
	IsLoaded(pos cube.Pos) bool
	// Powered reports a redstone-like signal at pos.
	Powered(pos cube.Pos) bool
}

// axisIndex maps a cube axis onto a Pos index.
func axisIndex(a cube.Axis) int {
	switch a {
	case cube.X:
		return 0
	case cube.Y:
		return 1
	default:
		return 2
	}
}

// AxisIndex is the Pos component that varies along a.
func AxisIndex(a cube.Axis) int { return axisIndex(a) }

var axisNames = [3]string{"X", "Y", "Z"}

func less(a, b cube.Pos) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[2] < b[2]
}

// Less orders positions x-major, then y, then z.
func Less(a, b cube.Pos) bool { return less(a, b) }
