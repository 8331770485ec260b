package world

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"

	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/multiblock"
)

// ImportSnapshot replaces the world state with s. Controllers that were
// assembled or paused come back disassembled and marked restored, so their
// first successful validation re-runs the formed hooks without resetting the
// machine state. A machine record that does not decode is logged and the
// machine keeps its defaults. The world resumes at the tick after s.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("snapshot: unsupported version %d", s.Header.Version)
	}
	if s.Header.WorldID != "" {
		w.cfg.ID = s.Header.WorldID
	}
	if s.TickRate > 0 {
		w.cfg.TickRateHz = s.TickRate
	}
	if s.ChunkSize > 0 {
		w.cfg.ChunkSize = s.ChunkSize
	}
	w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	if s.BlocksDigest != "" && s.BlocksDigest != w.catalogs.Blocks.DefsDigest {
		w.logf("snapshot: blocks digest differs from loaded catalog")
	}
	if s.RecipesDigest != "" && s.RecipesDigest != w.catalogs.Recipes.Digest {
		w.logf("snapshot: recipes digest differs from loaded catalog")
	}

	blocks := map[cube.Pos]uint16{}
	for _, b := range s.Blocks {
		id, ok := w.catalogs.Blocks.Index[b.ID]
		if !ok {
			return fmt.Errorf("snapshot: %w: %s", ErrUnknownBlock, b.ID)
		}
		if id != 0 {
			blocks[cube.Pos(b.Pos)] = id
		}
	}

	w.blocks = blocks
	w.parts = map[cube.Pos]multiblock.Part{}
	w.owner = map[cube.Pos]*multiblock.Controller{}
	w.signals = map[cube.Pos]bool{}
	w.unloaded = map[ChunkKey]bool{}
	w.controllers = map[uuid.UUID]*multiblock.Controller{}
	w.pendingEvents = nil
	w.nextControllerNum = s.NextControllerNum

	states := map[uuid.UUID]string{}
	for _, rec := range s.Controllers {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return fmt.Errorf("snapshot: controller id %q: %w", rec.ID, err)
		}
		spec, ok := w.kinds[multiblock.Kind(rec.Kind)]
		if !ok {
			return fmt.Errorf("snapshot: %w: %s", ErrUnknownKind, rec.Kind)
		}
		c := w.attachController(spec, id)
		if len(rec.Machine) > 0 {
			if err := c.Machine().Load(rec.Machine); err != nil {
				w.logf("snapshot: controller %s: ignoring machine record: %v", rec.ID, err)
			}
		}
		states[id] = rec.State
	}

	for _, rec := range s.Parts {
		spec, ok := w.kinds[multiblock.Kind(rec.Kind)]
		if !ok {
			return fmt.Errorf("snapshot: %w: %s", ErrUnknownKind, rec.Kind)
		}
		t, ok := spec.ParsePart(rec.Type)
		if !ok {
			return fmt.Errorf("snapshot: %w: %s", ErrUnknownPart, rec.Type)
		}
		pos := cube.Pos(rec.Pos)
		p := multiblock.Part{Pos: pos, Kind: spec.Rules.Kind, Type: t, Variant: rec.Variant}
		w.parts[pos] = p

		id, err := uuid.Parse(rec.Controller)
		if err != nil {
			return fmt.Errorf("snapshot: part %v: controller id %q: %w", rec.Pos, rec.Controller, err)
		}
		c := w.controllers[id]
		if c == nil {
			return fmt.Errorf("snapshot: part %v: %w: %s", rec.Pos, ErrNoController, rec.Controller)
		}
		c.Attach(p)
		w.owner[pos] = c
	}

	for _, p := range s.Signals {
		w.signals[cube.Pos(p)] = true
	}
	for _, k := range s.Unloaded {
		w.unloaded[ChunkKey{CX: k.CX, CZ: k.CZ}] = true
	}

	for id, c := range w.controllers {
		if c.Empty() {
			delete(w.controllers, id)
			continue
		}
		if st := multiblock.ParseAssemblyState(states[id]); st != multiblock.Disassembled {
			c.MarkRestored()
		}
	}

	w.tick.Store(s.Header.Tick + 1)
	return nil
}
