package world

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/multiblock/turbine"
)

// Place puts part p into the world and registers it with a controller of its
// kind. Controllers touching the new cell are merged into one: the one with
// the most parts survives, ties go to the smaller reference position.
func (w *World) Place(p multiblock.Part) (*multiblock.Controller, error) {
	if _, ok := w.kinds[p.Kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}
	if !w.IsLoaded(p.Pos) {
		return nil, ErrNotLoaded
	}
	if _, ok := w.parts[p.Pos]; ok {
		return nil, ErrOccupied
	}
	if !w.MaterialAt(p.Pos).Replaceable() {
		return nil, ErrOccupied
	}
	delete(w.blocks, p.Pos)

	var touching []*multiblock.Controller
	seen := map[uuid.UUID]bool{}
	for _, f := range cube.Faces() {
		c := w.owner[p.Pos.Side(f)]
		if c == nil || c.Kind() != p.Kind || seen[c.ID()] {
			continue
		}
		seen[c.ID()] = true
		touching = append(touching, c)
	}

	var c *multiblock.Controller
	switch len(touching) {
	case 0:
		c = w.newController(p.Kind)
		w.event("created", c, nil, &p.Pos)
	case 1:
		c = touching[0]
	default:
		c = survivor(touching)
		for _, o := range touching {
			if o != c {
				w.assimilate(c, o)
			}
		}
	}

	c.Attach(p)
	w.parts[p.Pos] = p
	w.owner[p.Pos] = c
	return c, nil
}

func survivor(cs []*multiblock.Controller) *multiblock.Controller {
	best := cs[0]
	for _, c := range cs[1:] {
		n, bn := c.Registry().Len(), best.Registry().Len()
		if n > bn {
			best = c
			continue
		}
		if n == bn {
			r, _ := c.Reference()
			br, _ := best.Reference()
			if multiblock.Less(r, br) {
				best = c
			}
		}
	}
	return best
}

func (w *World) assimilate(dst, src *multiblock.Controller) {
	moved := src.Registry().Parts()
	dst.Assimilate(src, w.tick.Load())
	for _, p := range moved {
		w.owner[p.Pos] = dst
	}
	delete(w.controllers, src.ID())
	w.event("merged", dst, src, nil)
}

// Break removes the part at pos, which must be in a loaded chunk. A controller left without parts is
// destroyed; one left in several disconnected pieces keeps the largest piece
// and hands each other piece to a new controller.
func (w *World) Break(pos cube.Pos) (multiblock.Part, error) {
	if !w.IsLoaded(pos) {
		return multiblock.Part{}, ErrNotLoaded
	}
	p, ok := w.parts[pos]
	if !ok {
		return multiblock.Part{}, ErrNoPart
	}
	c := w.owner[pos]
	delete(w.parts, pos)
	delete(w.owner, pos)
	if c == nil {
		return p, nil
	}
	c.Detach(pos)

	if c.Empty() {
		c.Dissolve(w.tick.Load())
		delete(w.controllers, c.ID())
		w.event("destroyed", c, nil, &pos)
		return p, nil
	}
	w.splitAround(c, pos)
	return p, nil
}

func (w *World) splitAround(c *multiblock.Controller, pos cube.Pos) {
	var comps []map[cube.Pos]bool
	covered := map[cube.Pos]bool{}
	for _, f := range cube.Faces() {
		n := pos.Side(f)
		if covered[n] || !c.Registry().Has(n) {
			continue
		}
		comp := c.Registry().Reachable(n)
		for q := range comp {
			covered[q] = true
		}
		comps = append(comps, comp)
	}
	if len(comps) < 2 {
		return
	}
	keep := 0
	for i, comp := range comps {
		if len(comp) > len(comps[keep]) {
			keep = i
		}
	}
	for i, comp := range comps {
		if i == keep {
			continue
		}
		nc := w.newController(c.Kind())
		for _, q := range sortedPositions(comp) {
			part, ok := c.Detach(q)
			if !ok {
				continue
			}
			nc.Attach(part)
			w.owner[q] = nc
		}
		w.event("split", c, nc, &pos)
	}
}

// SetBlock writes a filler block. Controllers whose box covers the cell
// re-validate on their next tick.
func (w *World) SetBlock(pos cube.Pos, id string) error {
	if _, ok := w.parts[pos]; ok {
		return ErrOccupied
	}
	b, ok := w.catalogs.Blocks.Index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	if b == 0 {
		delete(w.blocks, pos)
	} else {
		w.blocks[pos] = b
	}
	for _, c := range w.controllers {
		if box, ok := c.Registry().Box(); ok && box.Contains(pos) {
			c.Invalidate()
		}
	}
	return nil
}

func (w *World) SetSignal(pos cube.Pos, on bool) {
	if on {
		w.signals[pos] = true
	} else {
		delete(w.signals, pos)
	}
}

func (w *World) tanks(id uuid.UUID) (*turbine.Turbine, error) {
	c := w.controllers[id]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoController, id)
	}
	t, ok := c.Machine().(*turbine.Turbine)
	if !ok {
		return nil, ErrNoTanks
	}
	return t, nil
}

// FillInput pours fluid into the controller's input tank and returns the
// accepted amount.
func (w *World) FillInput(id uuid.UUID, fluid string, amount int) (int, error) {
	t, err := w.tanks(id)
	if err != nil {
		return 0, err
	}
	return t.Input.Fill(fluid, amount), nil
}

// DrainOutput takes up to amount from the controller's output tank.
func (w *World) DrainOutput(id uuid.UUID, amount int) (string, int, error) {
	t, err := w.tanks(id)
	if err != nil {
		return "", 0, err
	}
	fluid := t.Output.Fluid()
	return fluid, t.Output.Drain(amount), nil
}

func sortedPositions(set map[cube.Pos]bool) []cube.Pos {
	out := make([]cube.Pos, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sortPos(out)
	return out
}
