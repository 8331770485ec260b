package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	getter "github.com/hashicorp/go-getter"

	"turbinecraft.ai/internal/sim/catalogs"
)

// catalogFiles are the files a bundle must carry; anything else is ignored.
var catalogFiles = []string{"blocks.json", "recipes.json"}

func main() {
	var (
		src       = flag.String("src", "", "bundle source (go-getter url: dir, git::, https://...zip)")
		configDir = flag.String("configs", "./configs", "config directory to install into")
		schemaDir = flag.String("schemas", "./schemas", "schema directory used to validate the bundle")
		dryRun    = flag.Bool("dry_run", false, "validate only; do not install")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[catalogsync] ", log.LstdFlags)
	if *src == "" {
		fmt.Fprintln(os.Stderr, "missing -src")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cats, err := syncCatalogs(ctx, *src, *configDir, *schemaDir, *dryRun, logger)
	if err != nil {
		logger.Fatalf("sync: %v", err)
	}
	logger.Printf("blocks=%d digest=%s recipes=%d digest=%s", len(cats.Blocks.Palette), cats.Blocks.DefsDigest, len(cats.Recipes.ByID), cats.Recipes.Digest)
}

// syncCatalogs fetches the bundle at src into a staging dir, validates it and,
// unless dryRun, replaces the catalog files in configDir. configDir is left
// untouched when any step fails.
func syncCatalogs(ctx context.Context, src, configDir, schemaDir string, dryRun bool, logger *log.Logger) (*catalogs.Catalogs, error) {
	tmp, err := os.MkdirTemp("", "catalogsync-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)
	staging := filepath.Join(tmp, "bundle")

	pwd, _ := os.Getwd()
	logger.Printf("fetching %s", src)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  staging,
		Pwd:  pwd,
		Mode: getter.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}

	cats, err := catalogs.Load(staging, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("validate bundle: %w", err)
	}
	if dryRun {
		return cats, nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, err
	}
	for _, name := range catalogFiles {
		if err := install(filepath.Join(staging, name), filepath.Join(configDir, name)); err != nil {
			return nil, fmt.Errorf("install %s: %w", name, err)
		}
		logger.Printf("installed %s", name)
	}
	return cats, nil
}

// install copies src next to dst and renames it into place.
func install(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
