package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"turbinecraft.ai/internal/sim/multiblock"
)

// StateDigest hashes everything that affects future ticks.
func (w *World) StateDigest() string { return w.stateDigest(w.tick.Load()) }

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	h.Write([]byte(w.cfg.ID))
	digestWriteU64(h, &tmp, w.nextControllerNum)

	blockPos := make([]cube.Pos, 0, len(w.blocks))
	for p := range w.blocks {
		blockPos = append(blockPos, p)
	}
	sortPos(blockPos)
	for _, p := range blockPos {
		digestWritePos(h, &tmp, p)
		digestWriteU64(h, &tmp, uint64(w.blocks[p]))
	}

	partPos := make([]cube.Pos, 0, len(w.parts))
	for p := range w.parts {
		partPos = append(partPos, p)
	}
	sortPos(partPos)
	for _, pos := range partPos {
		p := w.parts[pos]
		digestWritePos(h, &tmp, pos)
		h.Write([]byte(p.Kind))
		digestWriteU64(h, &tmp, uint64(p.Type))
		h.Write([]byte(p.Variant))
		if c := w.owner[pos]; c != nil {
			id := c.ID()
			h.Write(id[:])
		}
	}

	sigPos := make([]cube.Pos, 0, len(w.signals))
	for p := range w.signals {
		sigPos = append(sigPos, p)
	}
	sortPos(sigPos)
	for _, p := range sigPos {
		digestWritePos(h, &tmp, p)
	}

	for _, k := range w.sortedUnloaded() {
		digestWriteI64(h, &tmp, int64(k.CX))
		digestWriteI64(h, &tmp, int64(k.CZ))
	}

	cs := make([]*multiblock.Controller, 0, len(w.controllers))
	for _, c := range w.controllers {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID().String() < cs[j].ID().String() })
	for _, c := range cs {
		id := c.ID()
		h.Write(id[:])
		h.Write([]byte{byte(c.State())})
		if e := c.LastError(); e != nil {
			h.Write([]byte(e.Code))
		}
		if b, err := c.Machine().Save(); err == nil {
			digestWriteU64(h, &tmp, uint64(len(b)))
			h.Write(b)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWritePos(h hashWriter, tmp *[8]byte, p cube.Pos) {
	for _, v := range p {
		digestWriteI64(h, tmp, int64(v))
	}
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
