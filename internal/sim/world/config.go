package world

import "turbinecraft.ai/internal/sim/tuning"

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int

	// Chunks are vertical columns ChunkSize cells wide on X and Z.
	ChunkSize int

	Tuning tuning.Tuning
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 16
	}
	if c.Tuning.MachineUpdateRate == 0 && len(c.Tuning.Turbine.Blades) == 0 {
		c.Tuning = tuning.Defaults()
	}
	c.Tuning.Normalize()
}
