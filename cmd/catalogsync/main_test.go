package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func writeBundle(t *testing.T, recipes string) string {
	t.Helper()
	dir := t.TempDir()
	blocks, err := os.ReadFile("../../configs/blocks.json")
	if err != nil {
		t.Fatalf("read blocks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), blocks, 0o644); err != nil {
		t.Fatalf("write blocks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "recipes.json"), []byte(recipes), 0o644); err != nil {
		t.Fatalf("write recipes: %v", err)
	}
	return dir
}

const bundleRecipes = `[
  {"recipe_id": "steam", "input": {"fluid": "steam", "amount": 1}, "output": {"fluid": "water", "amount": 1}, "power_per_mb": 10}
]`

func TestSyncInstallsValidBundle(t *testing.T) {
	src := writeBundle(t, bundleRecipes)
	dst := filepath.Join(t.TempDir(), "configs")
	logger := log.New(io.Discard, "", 0)

	cats, err := syncCatalogs(context.Background(), src, dst, "../../schemas", false, logger)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := cats.Recipes.ByID["steam"]; !ok || len(cats.Recipes.ByID) != 1 {
		t.Fatalf("recipes: got %v", cats.Recipes.ByID)
	}
	got, err := os.ReadFile(filepath.Join(dst, "recipes.json"))
	if err != nil {
		t.Fatalf("read installed: %v", err)
	}
	if string(got) != bundleRecipes {
		t.Fatalf("installed recipes: got %q want %q", got, bundleRecipes)
	}
	if _, err := os.Stat(filepath.Join(dst, "blocks.json")); err != nil {
		t.Fatalf("installed blocks: %v", err)
	}
}

func TestSyncRejectsInvalidBundle(t *testing.T) {
	src := writeBundle(t, `[{"recipe_id": "broken"}]`)
	dst := t.TempDir()
	if err := os.WriteFile(filepath.Join(dst, "recipes.json"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger := log.New(io.Discard, "", 0)

	if _, err := syncCatalogs(context.Background(), src, dst, "../../schemas", false, logger); err == nil {
		t.Fatalf("expected validation error")
	}
	got, _ := os.ReadFile(filepath.Join(dst, "recipes.json"))
	if string(got) != "keep" {
		t.Fatalf("config dir modified on failure: got %q", got)
	}
}

func TestSyncDryRunLeavesConfigs(t *testing.T) {
	src := writeBundle(t, bundleRecipes)
	dst := filepath.Join(t.TempDir(), "configs")
	logger := log.New(io.Discard, "", 0)

	if _, err := syncCatalogs(context.Background(), src, dst, "../../schemas", true, logger); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("dry run created %s", dst)
	}
}
