package kitchen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datakitchen/dkcli/internal/utils"
)

// Recipe is one recipe working copy inside a kitchen.
type Recipe struct {
	Kitchen *Kitchen
	Name    string
}

// Root is the recipe's working directory, `<kitchen>/<recipe>`.
func (r *Recipe) Root() string {
	return r.Kitchen.RecipeDir(r.Name)
}

// MetaDir is `<kitchen>/.dk/recipes/<recipe>`.
func (r *Recipe) MetaDir() string {
	return r.Kitchen.RecipeMetaDir(r.Name)
}

func (r *Recipe) MetaPath(name string) string {
	return filepath.Join(r.MetaDir(), name)
}

// Exists reports whether both the working directory and the meta marker exist.
func (r *Recipe) Exists() bool {
	return utils.DirExists(r.Root()) && r.Kitchen.HasRecipe(r.Name)
}

// WriteMeta writes RECIPE_META and ORIG_HEAD.
func (r *Recipe) WriteMeta(origHead string) error {
	if err := utils.EnsureDir(r.MetaDir()); err != nil {
		return fmt.Errorf("create recipe meta dir: %w", err)
	}
	if err := os.WriteFile(r.MetaPath(recipeMetaFile), []byte(r.Name), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", recipeMetaFile, err)
	}
	return r.SetOrigHead(origHead)
}

// OrigHead is the remote tree id recorded at the last get or update.
func (r *Recipe) OrigHead() (string, error) {
	data, err := os.ReadFile(r.MetaPath(origHeadFile))
	if os.IsNotExist(err) {
		return "", ErrNoOrigHead
	} else if err != nil {
		return "", err
	}

	head := strings.TrimSpace(string(data))
	if head == "" {
		return "", ErrNoOrigHead
	}
	return head, nil
}

func (r *Recipe) SetOrigHead(head string) error {
	if err := utils.EnsureDir(r.MetaDir()); err != nil {
		return err
	}
	return os.WriteFile(r.MetaPath(origHeadFile), []byte(head), 0o644)
}

// RelPath converts an absolute or cwd-relative path inside the recipe into a
// slash separated path relative to the recipe root.
func (r *Recipe) RelPath(path string) (string, error) {
	abs, err := utils.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if !utils.IsWithin(r.Root(), abs) || abs == r.Root() {
		return "", fmt.Errorf("%s is not inside recipe %s", path, r.Name)
	}
	rel, err := filepath.Rel(r.Root(), abs)
	if err != nil {
		return "", err
	}
	return utils.ToSlash(rel), nil
}

// AbsPath is the inverse of RelPath.
func (r *Recipe) AbsPath(rel string) string {
	return filepath.Join(r.Root(), filepath.FromSlash(rel))
}
