package multiblock

import (
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Registry is the live part set of one controller, indexed by position and
// by type. It never validates; the controller pulls validation on its own
// schedule.
type Registry struct {
	kind   Kind
	parts  map[cube.Pos]Part
	byType map[PartType]map[cube.Pos]struct{}

	box      Box
	boxValid bool
}

func NewRegistry(kind Kind) *Registry {
	return &Registry{
		kind:   kind,
		parts:  map[cube.Pos]Part{},
		byType: map[PartType]map[cube.Pos]struct{}{},
	}
}

func (r *Registry) Kind() Kind { return r.kind }
func (r *Registry) Len() int   { return len(r.parts) }

// Add registers p. Parts of another kind and occupied positions are refused.
func (r *Registry) Add(p Part) bool {
	if p.Kind != r.kind {
		return false
	}
	if _, ok := r.parts[p.Pos]; ok {
		return false
	}
	r.parts[p.Pos] = p
	set := r.byType[p.Type]
	if set == nil {
		set = map[cube.Pos]struct{}{}
		r.byType[p.Type] = set
	}
	set[p.Pos] = struct{}{}

	if !r.boxValid {
		r.box = BoxAt(p.Pos)
		r.boxValid = true
	} else {
		r.box = r.box.Grow(p.Pos)
	}
	return true
}

// Remove unregisters the part at pos. The box is only recomputed when the
// removed cell sat on its boundary.
func (r *Registry) Remove(pos cube.Pos) (Part, bool) {
	p, ok := r.parts[pos]
	if !ok {
		return Part{}, false
	}
	delete(r.parts, pos)
	if set := r.byType[p.Type]; set != nil {
		delete(set, pos)
		if len(set) == 0 {
			delete(r.byType, p.Type)
		}
	}
	if len(r.parts) == 0 {
		r.box, r.boxValid = Box{}, false
	} else if r.box.OnBoundary(pos) {
		r.recomputeBox()
	}
	return p, true
}

func (r *Registry) recomputeBox() {
	first := true
	for pos := range r.parts {
		if first {
			r.box = BoxAt(pos)
			first = false
			continue
		}
		r.box = r.box.Grow(pos)
	}
	r.boxValid = !first
}

func (r *Registry) Get(pos cube.Pos) (Part, bool) {
	p, ok := r.parts[pos]
	return p, ok
}

func (r *Registry) Has(pos cube.Pos) bool {
	_, ok := r.parts[pos]
	return ok
}

// Box returns the bounding box of all registered parts; ok is false when empty.
func (r *Registry) Box() (Box, bool) { return r.box, r.boxValid }

func (r *Registry) Count(t PartType) int { return len(r.byType[t]) }

// OfType returns the positions of every part of type t in scan order.
func (r *Registry) OfType(t PartType) []cube.Pos {
	set := r.byType[t]
	out := make([]cube.Pos, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// Parts returns all registered parts in scan order.
func (r *Registry) Parts() []Part {
	out := make([]Part, 0, len(r.parts))
	for _, p := range r.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Pos, out[j].Pos) })
	return out
}

// Reachable returns the registered positions connected to start through face
// adjacency, including start itself.
func (r *Registry) Reachable(start cube.Pos) map[cube.Pos]bool {
	seen := map[cube.Pos]bool{}
	if !r.Has(start) {
		return seen
	}
	q := []cube.Pos{start}
	seen[start] = true
	for len(q) > 0 {
		cur := q[0]
		q = q[1:]
		for _, f := range cube.Faces() {
			n := cur.Side(f)
			if seen[n] || !r.Has(n) {
				continue
			}
			seen[n] = true
			q = append(q, n)
		}
	}
	return seen
}

func sortPositions(ps []cube.Pos) {
	sort.Slice(ps, func(i, j int) bool { return less(ps[i], ps[j]) })
}
