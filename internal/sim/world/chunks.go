package world

import (
	"context"
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/world/logic/mathx"
)

func (w *World) chunkOf(pos cube.Pos) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(pos[0], w.cfg.ChunkSize), CZ: mathx.FloorDiv(pos[2], w.cfg.ChunkSize)}
}

// chunkSpan returns the chunk range covered by the controller's box.
func (w *World) chunkSpan(c *multiblock.Controller) (lo, hi ChunkKey, ok bool) {
	box, ok := c.Registry().Box()
	if !ok {
		return ChunkKey{}, ChunkKey{}, false
	}
	lo.CX, hi.CX = mathx.FloorSpan(box.Min[0], box.Max[0], w.cfg.ChunkSize)
	lo.CZ, hi.CZ = mathx.FloorSpan(box.Min[2], box.Max[2], w.cfg.ChunkSize)
	return lo, hi, true
}

func (w *World) touches(c *multiblock.Controller, k ChunkKey) bool {
	lo, hi, ok := w.chunkSpan(c)
	return ok && k.CX >= lo.CX && k.CX <= hi.CX && k.CZ >= lo.CZ && k.CZ <= hi.CZ
}

// fullyLoaded reports whether every chunk under the controller's box is loaded.
func (w *World) fullyLoaded(c *multiblock.Controller) bool {
	if len(w.unloaded) == 0 {
		return true
	}
	lo, hi, ok := w.chunkSpan(c)
	if !ok {
		return true
	}
	for cx := lo.CX; cx <= hi.CX; cx++ {
		for cz := lo.CZ; cz <= hi.CZ; cz++ {
			if w.unloaded[ChunkKey{CX: cx, CZ: cz}] {
				return false
			}
		}
	}
	return true
}

// UnloadChunk marks k unloaded and pauses every assembled controller over it.
// Controllers not fully loaded are skipped by the tick.
func (w *World) UnloadChunk(k ChunkKey) {
	if w.unloaded[k] {
		return
	}
	w.unloaded[k] = true
	tick := w.tick.Load()
	for _, c := range w.sortedControllers() {
		if w.touches(c, k) {
			c.Pause(tick)
		}
	}
}

// LoadChunk marks k loaded and resumes paused controllers that are now fully
// loaded. Resuming re-validates.
func (w *World) LoadChunk(ctx context.Context, k ChunkKey) {
	if !w.unloaded[k] {
		return
	}
	delete(w.unloaded, k)
	tick := w.tick.Load()
	for _, c := range w.sortedControllers() {
		if c.State() == multiblock.Paused && w.touches(c, k) && w.fullyLoaded(c) {
			c.Resume(ctx, tick)
		}
	}
}

func (w *World) sortedUnloaded() []ChunkKey {
	out := make([]ChunkKey, 0, len(w.unloaded))
	for k := range w.unloaded {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CZ < out[j].CZ
	})
	return out
}

func sortPos(ps []cube.Pos) {
	sort.Slice(ps, func(i, j int) bool { return multiblock.Less(ps[i], ps[j]) })
}
