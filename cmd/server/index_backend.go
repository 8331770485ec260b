package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"turbinecraft.ai/internal/persistence/indexdb"
	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/tuning"
	"turbinecraft.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.EventLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	ControllerEvents(ctx context.Context, id string) ([]world.AssemblyEvent, error)
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TURBINE_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported TURBINE_INDEX_BACKEND: %s", backend)
	}
}
