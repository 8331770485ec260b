package turbine

import (
	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/tuning"
)

// Layout errors.
const (
	CodeNoController      = "turbine.no_controller"
	CodeTooManyController = "turbine.too_many_controllers"
	CodeNeedBearings      = "turbine.need_bearings"
	CodeAmbiguousBearings = "turbine.ambiguous_bearings"
	CodeBearingsOutside   = "turbine.bearings_outside_ends"
	CodeSideSquare        = "turbine.bearings_side_square"
	CodeValveWrongWall    = "turbine.valve_wrong_wall"
	CodeCentreAndSquare   = "turbine.bearings_centre_and_square"
	CodeShaftCentre       = "turbine.shaft_centre"
	CodeSpaceBetween      = "turbine.space_between_blades"
	CodeDifferentBlades   = "turbine.different_type_blades"
	CodeMissingBlades     = "turbine.missing_blades"
)

// Layout is the geometry derived from a whole turbine.
type Layout struct {
	Controller cube.Pos
	Axis       cube.Axis
	FlowDir    cube.Face
	FlowLength int

	ShaftWidth  int
	ShaftVolume int
	BladeLength int
	BladeSets   int

	TotalExpansion    float64
	ExpansionLevels   []float64
	BladeEfficiencies []float64
}

// BladeVolume is the number of blade cells across all blade sets.
func (l *Layout) BladeVolume() int {
	return 4 * l.ShaftWidth * l.BladeLength * l.BladeSets
}

type layoutConfig struct {
	blades          map[string]tuning.BladeTuning
	statorExpansion float64
}

var axes = [3]cube.Axis{cube.X, cube.Y, cube.Z}

func axisFaces(i int) (neg, pos cube.Face) {
	switch i {
	case 0:
		return cube.FaceWest, cube.FaceEast
	case 1:
		return cube.FaceDown, cube.FaceUp
	default:
		return cube.FaceNorth, cube.FaceSouth
	}
}

// crossAxes returns the two position indices orthogonal to axis i.
func crossAxes(i int) (int, int) {
	switch i {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

func computeLayout(s *multiblock.Scan, lc layoutConfig) (*Layout, *multiblock.ValidationError) {
	reg := s.Registry
	box := s.Box

	ctrls := reg.OfType(Controller)
	switch {
	case len(ctrls) == 0:
		return nil, multiblock.Fail(CodeNoController)
	case len(ctrls) > 1:
		return nil, multiblock.FailAt(CodeTooManyController, ctrls[1])
	}

	ai, verr := rotorAxis(box, reg.OfType(RotorBearing))
	if verr != nil {
		return nil, verr
	}
	j, k := crossAxes(ai)
	size := box.Size()
	if size[j] != size[k] {
		return nil, multiblock.Fail(CodeSideSquare)
	}

	flowDir, verr := flowDirection(box, ai, reg.OfType(Inlet), reg.OfType(Outlet))
	if verr != nil {
		return nil, verr
	}
	positive := multiblock.Positive(flowDir)
	step := 1
	inletPlane := box.Min[ai]
	if !positive {
		step = -1
		inletPlane = box.Max[ai]
	}
	flowLength := size[ai] - 2

	// Middle strips across the inlet wall locate the bearing square.
	mid := func(i int) int { return (box.Min[i] + box.Max[i]) >> 1 }
	stripU := stripCounts(s, box, ai, inletPlane, j, k, mid(k))
	stripV := stripCounts(s, box, ai, inletPlane, k, j, mid(j))
	if !stripU.found || stripU.before != stripU.after {
		return nil, multiblock.Fail(CodeCentreAndSquare)
	}
	if !stripV.found || stripV.before != stripU.before || stripV.after != stripU.after || stripV.bearings != stripU.bearings {
		return nil, multiblock.Fail(CodeCentreAndSquare)
	}
	width := stripU.bearings
	bladeLength := stripU.before - 1

	var lo, hi cube.Pos
	lo[j], hi[j] = box.Min[j]+stripU.before, box.Min[j]+stripU.before+width-1
	lo[k], hi[k] = box.Min[k]+stripV.before, box.Min[k]+stripV.before+width-1

	square := func(plane int) multiblock.Box {
		b := multiblock.Box{Min: lo, Max: hi}
		b.Min[ai], b.Max[ai] = plane, plane
		return b
	}
	outletPlane := inletPlane + step*(flowLength+1)
	for _, plane := range []int{inletPlane, outletPlane} {
		if p, bad := firstNot(square(plane), func(p cube.Pos) bool { return s.Is(p, RotorBearing) }); bad {
			return nil, multiblock.FailAt(CodeCentreAndSquare, p)
		}
	}
	for d := 1; d <= flowLength; d++ {
		if p, bad := firstNot(square(inletPlane+step*d), func(p cube.Pos) bool { return s.Is(p, RotorShaft) }); bad {
			return nil, multiblock.FailAt(CodeShaftCentre, p)
		}
	}

	l := &Layout{
		Controller:     ctrls[0],
		Axis:           axes[ai],
		FlowDir:        flowDir,
		FlowLength:     flowLength,
		ShaftWidth:     width,
		ShaftVolume:    width * width * flowLength,
		BladeLength:    bladeLength,
		TotalExpansion: 1,
	}

	interior := box.Interior()
	for d := 0; d < flowLength; d++ {
		plane := inletPlane + step*(d+1)
		ring := rotorRing{s: s, interior: interior, ai: ai, j: j, k: k, plane: plane, lo: bladeLength, hi: bladeLength + width}
		if p, bad := ring.firstBlockedCorner(); bad {
			return nil, multiblock.FailAt(CodeSpaceBetween, p)
		}
		t, verr := ring.bladeType()
		if verr != nil {
			return nil, verr
		}
		switch {
		case t == RotorStator:
			l.TotalExpansion *= lc.statorExpansion
			l.ExpansionLevels = append(l.ExpansionLevels, l.TotalExpansion)
			l.BladeEfficiencies = append(l.BladeEfficiencies, 0)
		case t != 0:
			b := lc.blades[bladeIDs[t]]
			l.TotalExpansion *= b.Expansion
			l.ExpansionLevels = append(l.ExpansionLevels, l.TotalExpansion)
			l.BladeEfficiencies = append(l.BladeEfficiencies, b.Efficiency)
			l.BladeSets++
		}
	}
	if len(l.ExpansionLevels) != flowLength || len(l.BladeEfficiencies) != flowLength {
		return nil, multiblock.Fail(CodeMissingBlades)
	}
	return l, nil
}

// rotorAxis picks the axis whose two end walls both hold bearings. When
// several qualify the one with more bearings on its ends wins; a tie is
// rejected. Every bearing must sit on the chosen end walls.
func rotorAxis(box multiblock.Box, bearings []cube.Pos) (int, *multiblock.ValidationError) {
	best, bestCount, tie := -1, 0, false
	for i := 0; i < 3; i++ {
		lo, hi := 0, 0
		for _, p := range bearings {
			if p[i] == box.Min[i] {
				lo++
			}
			if p[i] == box.Max[i] {
				hi++
			}
		}
		if lo == 0 || hi == 0 {
			continue
		}
		switch n := lo + hi; {
		case n > bestCount:
			best, bestCount, tie = i, n, false
		case n == bestCount:
			tie = true
		}
	}
	if best < 0 {
		return 0, multiblock.Fail(CodeNeedBearings)
	}
	if tie {
		return 0, multiblock.Fail(CodeAmbiguousBearings)
	}
	for _, p := range bearings {
		if p[best] != box.Min[best] && p[best] != box.Max[best] {
			return 0, multiblock.FailAt(CodeBearingsOutside, p)
		}
	}
	return best, nil
}

// flowDirection derives the flow direction from the inlet wall; outlets must
// all sit on the wall the flow exits through.
func flowDirection(box multiblock.Box, ai int, inlets, outlets []cube.Pos) (cube.Face, *multiblock.ValidationError) {
	if len(inlets) == 0 || len(outlets) == 0 {
		return 0, multiblock.Fail(CodeValveWrongWall)
	}
	neg, pos := axisFaces(ai)
	var dir cube.Face
	inMin, inMax := false, false
	for _, p := range inlets {
		switch {
		case p[ai] == box.Min[ai]:
			inMin = true
			dir = pos
		case p[ai] == box.Max[ai]:
			inMax = true
			dir = neg
		default:
			inMin, inMax = true, true
		}
		if inMin && inMax {
			return 0, multiblock.FailAt(CodeValveWrongWall, p)
		}
	}
	for _, p := range outlets {
		if !box.InWall(dir, p) {
			return 0, multiblock.FailAt(CodeValveWrongWall, p)
		}
	}
	return dir, nil
}

type strip struct {
	before, bearings, after int
	found                   bool
}

// stripCounts walks the wall row along axis u (with v fixed) and counts the
// cells before, inside and after the first contiguous bearing run.
func stripCounts(s *multiblock.Scan, box multiblock.Box, ai, plane, u, v, vAt int) strip {
	var st strip
	after := false
	for c := box.Min[u]; c <= box.Max[u]; c++ {
		var p cube.Pos
		p[ai], p[u], p[v] = plane, c, vAt
		bearing := s.Is(p, RotorBearing)
		switch {
		case !st.found:
			if bearing {
				st.found = true
				st.bearings++
			} else {
				st.before++
			}
		case !after && bearing:
			st.bearings++
		default:
			after = true
			st.after++
		}
	}
	return st
}

func firstNot(b multiblock.Box, ok func(cube.Pos) bool) (cube.Pos, bool) {
	var bad cube.Pos
	found := false
	b.Each(func(p cube.Pos) bool {
		if ok(p) {
			return true
		}
		bad, found = p, true
		return false
	})
	return bad, found
}

// rotorRing is one cross-section of the interior at a given depth. Cells are
// addressed by their offsets (a, b) from the interior corner along axes j, k;
// the shaft occupies [lo, hi) on both.
type rotorRing struct {
	s        *multiblock.Scan
	interior multiblock.Box
	ai, j, k int
	plane    int
	lo, hi   int
}

func (r rotorRing) pos(a, b int) cube.Pos {
	var p cube.Pos
	p[r.ai] = r.plane
	p[r.j] = r.interior.Min[r.j] + a
	p[r.k] = r.interior.Min[r.k] + b
	return p
}

func (r rotorRing) width() int { return r.interior.Max[r.j] - r.interior.Min[r.j] + 1 }

func (r rotorRing) inShaft(c int) bool { return c >= r.lo && c < r.hi }

func (r rotorRing) firstBlockedCorner() (cube.Pos, bool) {
	n := r.width()
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if r.inShaft(a) || r.inShaft(b) {
				continue
			}
			p := r.pos(a, b)
			if _, part := r.s.PartAt(p); part || !r.s.MaterialAt(p).Replaceable() {
				return p, true
			}
		}
	}
	return cube.Pos{}, false
}

// bladeType returns the single rotor part type filling the four arms, or 0
// when the ring has no arms.
func (r rotorRing) bladeType() (multiblock.PartType, *multiblock.ValidationError) {
	n := r.width()
	var found multiblock.PartType
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if r.inShaft(a) == r.inShaft(b) {
				continue
			}
			p := r.pos(a, b)
			part, ok := r.s.PartAt(p)
			if !ok || part.Kind != Kind || !isRotorRing(part.Type) {
				return 0, multiblock.FailAt(CodeMissingBlades, p)
			}
			if found != 0 && part.Type != found {
				return 0, multiblock.FailAt(CodeDifferentBlades, p)
			}
			found = part.Type
		}
	}
	return found, nil
}
