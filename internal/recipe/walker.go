package recipe

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/utils"
)

// Walker produces the TreeState of a recipe directory on disk.
type Walker struct {
	Hasher ContentHasher
	Ignore *IgnoreList
}

// NewWalker returns a walker with the default hasher and the recipe's ignore rules.
func NewWalker(recipeRoot string) *Walker {
	ignore := NewIgnoreList(recipeRoot)
	ignore.Load()
	return &Walker{Hasher: DefaultHasher, Ignore: ignore}
}

// Walk hashes every non-ignored file below root. Folder keys start with the
// base name of root, which is the recipe name. Every directory gets a key,
// empty ones included. Any I/O error fails the whole walk.
func (w *Walker) Walk(root string) (TreeState, error) {
	hasher := w.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}
	ignore := w.Ignore
	if ignore == nil {
		ignore = NewIgnoreList(root)
		ignore.Load()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf("walk %s: not a directory", root)
	}

	recipeName := filepath.Base(root)
	tree := make(TreeState)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = utils.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ignore.ShouldIgnoreDir(rel) {
				return filepath.SkipDir
			}
			tree.EnsureFolder(folderKey(recipeName, rel))
			return nil
		}

		if ignore.ShouldIgnore(rel) {
			return nil
		}

		// symlinks are hashed by the bytes they point at; links to directories are skipped
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(p)
			if err != nil {
				return err
			}
			if target.IsDir() {
				return nil
			}
		}

		sha, err := HashFile(hasher, p)
		if err != nil {
			return err
		}
		tree.Add(folderKey(recipeName, path.Dir(rel)), FileRecord{Filename: d.Name(), SHA: sha})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "local walk failed")
	}

	return tree, nil
}

func folderKey(recipeName, rel string) string {
	if rel == "." || rel == "" {
		return recipeName
	}
	return recipeName + "/" + rel
}
