package world

import (
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures the world at nowTick. Every slice is sorted so two
// exports of the same state are byte-identical.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		ChunkSize:          w.cfg.ChunkSize,
		BlocksDigest:       w.catalogs.Blocks.DefsDigest,
		RecipesDigest:      w.catalogs.Recipes.Digest,
		NextControllerNum:  w.nextControllerNum,
	}

	blockPos := make([]cube.Pos, 0, len(w.blocks))
	for p := range w.blocks {
		blockPos = append(blockPos, p)
	}
	sortPos(blockPos)
	for _, p := range blockPos {
		s.Blocks = append(s.Blocks, snapshot.BlockV1{Pos: [3]int(p), ID: w.catalogs.Blocks.Palette[w.blocks[p]]})
	}

	partPos := make([]cube.Pos, 0, len(w.parts))
	for p := range w.parts {
		partPos = append(partPos, p)
	}
	sortPos(partPos)
	for _, pos := range partPos {
		p := w.parts[pos]
		rec := snapshot.PartV1{
			Pos:     [3]int(pos),
			Kind:    string(p.Kind),
			Type:    w.kinds[p.Kind].PartName(p.Type),
			Variant: p.Variant,
		}
		if c := w.owner[pos]; c != nil {
			rec.Controller = c.ID().String()
		}
		s.Parts = append(s.Parts, rec)
	}

	sigPos := make([]cube.Pos, 0, len(w.signals))
	for p := range w.signals {
		sigPos = append(sigPos, p)
	}
	sortPos(sigPos)
	for _, p := range sigPos {
		s.Signals = append(s.Signals, [3]int(p))
	}

	for _, k := range w.sortedUnloaded() {
		s.Unloaded = append(s.Unloaded, snapshot.ChunkKeyV1{CX: k.CX, CZ: k.CZ})
	}

	for _, c := range w.controllers {
		rec := snapshot.ControllerV1{
			ID:    c.ID().String(),
			Kind:  string(c.Kind()),
			State: c.State().String(),
		}
		b, err := c.Machine().Save()
		if err != nil {
			w.logf("snapshot: controller %s: %v", rec.ID, err)
		}
		rec.Machine = b
		s.Controllers = append(s.Controllers, rec)
	}
	sort.Slice(s.Controllers, func(i, j int) bool { return s.Controllers[i].ID < s.Controllers[j].ID })
	return s
}
