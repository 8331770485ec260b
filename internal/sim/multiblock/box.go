package multiblock

import "github.com/df-mc/dragonfly/server/block/cube"

// Box is an inclusive axis-aligned cuboid.
type Box struct {
	Min cube.Pos
	Max cube.Pos
}

func BoxAt(p cube.Pos) Box { return Box{Min: p, Max: p} }

func (b Box) Grow(p cube.Pos) Box {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
	return b
}

// Size is the exterior length along each axis.
func (b Box) Size() [3]int {
	return [3]int{b.Max[0] - b.Min[0] + 1, b.Max[1] - b.Min[1] + 1, b.Max[2] - b.Min[2] + 1}
}

func (b Box) Volume() int {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

func (b Box) Contains(p cube.Pos) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b Box) Intersects(o Box) bool {
	for i := 0; i < 3; i++ {
		if o.Max[i] < b.Min[i] || o.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Extremes counts the coordinates of p that sit on a min or max plane. Min and
// max are counted separately so a one-thick axis contributes two.
func (b Box) Extremes(p cube.Pos) int {
	n := 0
	for i := 0; i < 3; i++ {
		if p[i] == b.Min[i] {
			n++
		}
		if p[i] == b.Max[i] {
			n++
		}
	}
	return n
}

func (b Box) OnBoundary(p cube.Pos) bool {
	for i := 0; i < 3; i++ {
		if p[i] == b.Min[i] || p[i] == b.Max[i] {
			return true
		}
	}
	return false
}

// Role classifies a cell of the box by its extreme count.
func (b Box) Role(p cube.Pos) Role {
	switch n := b.Extremes(p); {
	case n >= 2:
		return RoleFrame
	case n == 1:
		switch p[1] {
		case b.Max[1]:
			return RoleTop
		case b.Min[1]:
			return RoleBottom
		default:
			return RoleSides
		}
	default:
		return RoleInterior
	}
}

// Each visits every cell x-major, then y, then z, stopping when fn returns false.
func (b Box) Each(fn func(p cube.Pos) bool) {
	for x := b.Min[0]; x <= b.Max[0]; x++ {
		for y := b.Min[1]; y <= b.Max[1]; y++ {
			for z := b.Min[2]; z <= b.Max[2]; z++ {
				if !fn(cube.Pos{x, y, z}) {
					return
				}
			}
		}
	}
}

// Interior shrinks the box by one on every side.
func (b Box) Interior() Box {
	return Box{
		Min: cube.Pos{b.Min[0] + 1, b.Min[1] + 1, b.Min[2] + 1},
		Max: cube.Pos{b.Max[0] - 1, b.Max[1] - 1, b.Max[2] - 1},
	}
}

// InWall reports whether p lies on the wall facing f.
func (b Box) InWall(f cube.Face, p cube.Pos) bool {
	i := axisIndex(f.Axis())
	if positive(f) {
		return p[i] == b.Max[i]
	}
	return p[i] == b.Min[i]
}

func positive(f cube.Face) bool {
	return f == cube.FaceUp || f == cube.FaceSouth || f == cube.FaceEast
}

// Positive reports whether f points along increasing coordinates.
func Positive(f cube.Face) bool { return positive(f) }

// HollowVolume is the number of shell cells of an x·y·z cuboid.
func HollowVolume(x, y, z int) int {
	if x <= 2 || y <= 2 || z <= 2 {
		return x * y * z
	}
	return x*y*z - (x-2)*(y-2)*(z-2)
}
