package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Catalogs struct {
	Blocks  BlockCatalog
	Recipes RecipeCatalog
}

// BlockCatalog lists the non-part filler blocks a cell may hold. AIR is
// always palette id 0.
type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID          string `json:"id"`
	Solid       bool   `json:"solid"`
	Replaceable bool   `json:"replaceable"`
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string

	// Recipe ids in load order; lookups walk this list so ties resolve the same way every run.
	order []string
}

type RecipeDef struct {
	RecipeID   string     `json:"recipe_id"`
	Input      FluidStack `json:"input"`
	Output     FluidStack `json:"output"`
	PowerPerMB float64    `json:"power_per_mb"`
}

type FluidStack struct {
	Fluid  string `json:"fluid"`
	Amount int    `json:"amount"`
}

// Load reads blocks.json and recipes.json from configDir. When schemaDir is
// non-empty, recipes.json is validated against recipes.schema.json first.
func Load(configDir, schemaDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	var schema *jsonschema.Schema
	if schemaDir != "" {
		s, err := jsonschema.Compile(filepath.Join(schemaDir, "recipes.schema.json"))
		if err != nil {
			return nil, fmt.Errorf("recipes.schema.json: %w", err)
		}
		schema = s
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), schema, &c.Recipes); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadRecipes(path string, schema *jsonschema.Schema, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if schema != nil {
		var doc any
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
			return fmt.Errorf("recipes.json: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("recipes.json: %w", err)
		}
	}

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.ByID = map[string]RecipeDef{}
	out.order = out.order[:0]
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("recipes.json: empty recipe_id")
		}
		if _, dup := out.ByID[r.RecipeID]; dup {
			return fmt.Errorf("recipes.json: duplicate recipe_id %s", r.RecipeID)
		}
		if !r.valid() {
			return fmt.Errorf("recipes.json: recipe %s: input amount must be positive and output amount non-negative", r.RecipeID)
		}
		out.ByID[r.RecipeID] = r
		out.order = append(out.order, r.RecipeID)
	}
	return nil
}

// NewRecipeCatalog builds a catalog from in-memory definitions.
func NewRecipeCatalog(defs ...RecipeDef) RecipeCatalog {
	c := RecipeCatalog{ByID: map[string]RecipeDef{}}
	var concat bytes.Buffer
	for _, r := range defs {
		if _, dup := c.ByID[r.RecipeID]; dup || !r.valid() {
			continue
		}
		c.ByID[r.RecipeID] = r
		c.order = append(c.order, r.RecipeID)
		b, _ := json.Marshal(r)
		concat.Write(b)
	}
	c.Digest = sha256Hex(concat.Bytes())
	return c
}

func (r RecipeDef) valid() bool {
	return r.Input.Amount > 0 && r.Output.Amount >= 0
}

// Matches reports whether the recipe accepts the given input tank contents.
func (r RecipeDef) Matches(fluid string, amount int) bool {
	return fluid != "" && r.Input.Amount > 0 && r.Input.Fluid == fluid && amount >= r.Input.Amount
}

// Match returns the first recipe accepting the given input tank contents.
func (c *RecipeCatalog) Match(fluid string, amount int) (RecipeDef, bool) {
	if c == nil {
		return RecipeDef{}, false
	}
	for _, id := range c.order {
		r := c.ByID[id]
		if r.Matches(fluid, amount) {
			return r, true
		}
	}
	return RecipeDef{}, false
}

// InputFluids lists every fluid some recipe consumes, sorted.
func (c *RecipeCatalog) InputFluids() []string {
	if c == nil {
		return nil
	}
	set := map[string]bool{}
	for _, r := range c.ByID {
		set[r.Input.Fluid] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
