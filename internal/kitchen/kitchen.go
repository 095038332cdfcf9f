package kitchen

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/gofrs/flock"
)

const (
	MetaDirName     = ".dk"
	kitchenMetaFile = "KITCHEN_META"
	recipesMetaDir  = "recipes"
	recipeMetaFile  = "RECIPE_META"
	origHeadFile    = "ORIG_HEAD"
	lockFile        = "dk.lock"
	maxSearchDepth  = 64
)

var (
	ErrNotARecipeOrKitchen = errors.New("not a recipe or kitchen directory")
	ErrKitchenLocked       = errors.New("kitchen locked by another dk process")
	ErrKitchenDirNotEmpty  = errors.New("kitchen directory exists and is not empty")
	ErrNoOrigHead          = errors.New("recipe has no ORIG_HEAD")
)

// Kitchen is a local kitchen directory: a folder with a `.dk` meta dir whose
// KITCHEN_META names the remote kitchen. Each direct child with a matching
// `.dk/recipes/<name>/RECIPE_META` is a recipe working copy.
type Kitchen struct {
	Name    string
	Root    string
	MetaDir string

	flock *flock.Flock
}

func newKitchen(root, name string) *Kitchen {
	meta := filepath.Join(root, MetaDirName)
	return &Kitchen{
		Name:    name,
		Root:    root,
		MetaDir: meta,
		flock:   flock.New(filepath.Join(meta, lockFile)),
	}
}

// Find walks up from dir until it reaches a kitchen root. The walk is bounded by
// the filesystem root and by maxSearchDepth.
func Find(dir string) (*Kitchen, error) {
	current, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	for depth := 0; depth < maxSearchDepth; depth++ {
		if name, ok := readKitchenName(current); ok {
			return newKitchen(current, name), nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, fmt.Errorf("%w: %s", ErrNotARecipeOrKitchen, dir)
}

// Open returns the kitchen rooted exactly at root.
func Open(root string) (*Kitchen, error) {
	abs, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	name, ok := readKitchenName(abs)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotARecipeOrKitchen, root)
	}
	return newKitchen(abs, name), nil
}

// IsRoot reports whether dir itself is a kitchen root.
func IsRoot(dir string) bool {
	_, ok := readKitchenName(dir)
	return ok
}

// Create sets up `<parentDir>/<name>` as a new local kitchen. An existing
// directory is accepted only when it is empty.
func Create(parentDir, name string) (*Kitchen, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid kitchen name %q", name)
	}

	parent, err := utils.ResolvePath(parentDir)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(parent, name)

	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrKitchenDirNotEmpty, root)
	}

	k := newKitchen(root, name)
	if err := utils.EnsureDir(k.RecipesMetaDir()); err != nil {
		return nil, fmt.Errorf("create kitchen meta dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(k.MetaDir, kitchenMetaFile), []byte(name), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", kitchenMetaFile, err)
	}

	slog.Debug("kitchen created", "kitchen", name, "root", root)
	return k, nil
}

func readKitchenName(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, MetaDirName, kitchenMetaFile))
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(string(data))
	return name, name != ""
}

func (k *Kitchen) RecipesMetaDir() string {
	return filepath.Join(k.MetaDir, recipesMetaDir)
}

func (k *Kitchen) RecipeMetaDir(recipe string) string {
	return filepath.Join(k.RecipesMetaDir(), recipe)
}

func (k *Kitchen) RecipeDir(recipe string) string {
	return filepath.Join(k.Root, recipe)
}

// Recipes lists the recipes that have local meta, sorted by name.
func (k *Kitchen) Recipes() ([]string, error) {
	entries, err := os.ReadDir(k.RecipesMetaDir())
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && k.HasRecipe(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HasRecipe reports whether RECIPE_META for name exists and matches it.
func (k *Kitchen) HasRecipe(name string) bool {
	data, err := os.ReadFile(filepath.Join(k.RecipeMetaDir(name), recipeMetaFile))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == name
}

// RecipeFor resolves the recipe that contains dir.
func (k *Kitchen) RecipeFor(dir string) (*Recipe, error) {
	abs, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(k.Root, abs)
	if err != nil || rel == "." || !utils.IsWithin(k.Root, abs) {
		return nil, fmt.Errorf("%w: %s is not inside a recipe", ErrNotARecipeOrKitchen, dir)
	}

	name := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if name == MetaDirName || !k.HasRecipe(name) {
		return nil, fmt.Errorf("%w: %s is not inside a recipe", ErrNotARecipeOrKitchen, dir)
	}
	return k.Recipe(name), nil
}

// Recipe returns a handle for name without checking that it exists on disk.
func (k *Kitchen) Recipe(name string) *Recipe {
	return &Recipe{Kitchen: k, Name: name}
}

// Lock takes the kitchen lock so concurrent dk processes do not interleave
// writes to the same working copy and meta files.
func (k *Kitchen) Lock() error {
	if err := utils.EnsureDir(k.MetaDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", k.MetaDir, err)
	}

	locked, err := k.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock kitchen: %w", err)
	}
	if !locked {
		return ErrKitchenLocked
	}
	return nil
}

func (k *Kitchen) Unlock() error {
	if !k.flock.Locked() {
		return nil
	}
	if err := k.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock kitchen: %w", err)
	}
	return os.Remove(k.flock.Path())
}
