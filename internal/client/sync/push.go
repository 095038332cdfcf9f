package sync

import (
	"context"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
)

// PushPolicy controls what a recipe update may change remotely.
type PushPolicy struct {
	// DeleteRemote deletes remote files that no longer exist locally.
	DeleteRemote bool
}

// Push sends every local change of recipeName in one update request. The
// change-set is built from a single reconcile before anything is sent. On
// success the snapshot is rewritten from that reconcile's walk.
func (s *Syncer) Push(ctx context.Context, recipeName, message string, policy PushPolicy) (*PushSummary, error) {
	var sum *PushSummary
	err := s.withLock(func() error {
		var err error
		sum, err = s.push(ctx, recipeName, message, policy)
		return err
	})
	return sum, err
}

func (s *Syncer) push(ctx context.Context, recipeName, message string, policy PushPolicy) (*PushSummary, error) {
	snap, err := s.Reconcile(ctx, recipeName)
	if err != nil {
		return nil, err
	}
	r := snap.Recipe
	sum := &PushSummary{Recipe: recipeName}

	changes, err := s.changeSet(snap, policy)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		sum.Unchanged = true
		return sum, nil
	}

	resp, err := s.remote.UpdateFiles(ctx, s.kitchen.Name, recipeName, message, changes)
	if err != nil {
		return nil, errors.Wrapf(err, "update recipe %s", recipeName)
	}
	sum.Issues = resp.Issues

	if errs := resp.Errors(); len(errs) > 0 {
		return sum, errors.WithHint(
			errors.Wrapf(ErrUpdateRejected, "unable to update files due to errors in recipe:\n\n%s", dksdk.FormatIssues(errs)),
			"fix the reported issues and run recipe-update again",
		)
	}

	sum.NotUpdated = resp.FailedFiles()
	notUpdated := make(map[string]bool, len(sum.NotUpdated))
	for _, p := range sum.NotUpdated {
		notUpdated[p] = true
	}

	for _, p := range sortedKeys(changes) {
		if notUpdated[p] {
			continue
		}
		change := changes[p]
		switch {
		case change.IsDelete():
			sum.Deleted = append(sum.Deleted, p)
		case change.IsNew != nil && *change.IsNew:
			sum.Created = append(sum.Created, p)
		default:
			sum.Updated = append(sum.Updated, p)
		}
	}

	paths := snap.Local.Paths()
	for _, rel := range sum.NotUpdated {
		full := path.Join(recipeName, rel)
		if old, ok := lookupPath(snap.Baseline, full); ok {
			paths[full] = old.SHA
		} else {
			delete(paths, full)
		}
	}
	if err := recipe.NewHashStore(r, s.hasher).Save(recipe.TreeFromPaths(paths)); err != nil {
		return sum, errors.Wrap(err, "save recipe snapshot")
	}

	slog.Info("recipe update",
		"recipe", recipeName,
		"created", len(sum.Created),
		"updated", len(sum.Updated),
		"deleted", len(sum.Deleted),
		"not_updated", len(sum.NotUpdated),
		"issues", len(sum.Issues),
	)
	return sum, nil
}

// changeSet maps recipe-relative paths to the change to send.
func (s *Syncer) changeSet(snap *Snapshot, policy PushPolicy) (map[string]dksdk.FileChange, error) {
	r := snap.Recipe
	res := snap.Result
	changes := make(map[string]dksdk.FileChange)

	for _, full := range sortedPaths(res.Different) {
		rel := recipe.StripRecipe(r.Name, full)
		data, err := s.readLocal(r, rel)
		if err != nil {
			return nil, err
		}
		changes[rel] = dksdk.UpdateChange(string(data), false)
	}

	for _, full := range sortedPaths(res.OnlyLocal) {
		rel := recipe.StripRecipe(r.Name, full)
		data, err := s.readLocal(r, rel)
		if err != nil {
			return nil, err
		}
		if isBinary(data) {
			return nil, errors.WithHint(
				errors.Wrapf(ErrBinaryFile, "%s", rel),
				"remove the file or add it to "+recipe.IgnoreFileName,
			)
		}
		changes[rel] = dksdk.UpdateChange(string(data), true)
	}

	if policy.DeleteRemote {
		for _, full := range sortedPaths(res.OnlyRemote) {
			changes[recipe.StripRecipe(r.Name, full)] = dksdk.DeleteChange()
		}
	}
	return changes, nil
}

// UpdateFiles pushes individual files. Files that only exist locally are
// created first; then every file is updated and the snapshot line rehashed.
// It stops at the first failure and returns the files already updated.
func (s *Syncer) UpdateFiles(ctx context.Context, recipeName, message string, rels []string) ([]string, error) {
	var done []string
	err := s.withLock(func() error {
		snap, err := s.Reconcile(ctx, recipeName)
		if err != nil {
			return err
		}
		r := snap.Recipe
		store := recipe.NewHashStore(r, s.hasher)

		for _, rel := range rels {
			full := path.Join(recipeName, rel)
			if _, onlyLocal := lookupPath(snap.Result.OnlyLocal, full); onlyLocal {
				if err := s.addFile(ctx, r, store, message, rel); err != nil {
					return err
				}
				slog.Info("file add", "recipe", recipeName, "file", rel)
			}
		}

		for _, rel := range rels {
			data, err := s.readLocal(r, rel)
			if err != nil {
				return err
			}
			if err := s.remote.UpdateFile(ctx, s.kitchen.Name, recipeName, message, rel, string(data)); err != nil {
				return errors.Wrapf(err, "update %s", rel)
			}
			if err := store.RecordFileUpdated(rel); err != nil {
				return err
			}
			done = append(done, rel)
			slog.Info("file update", "recipe", recipeName, "file", rel)
		}
		return nil
	})
	return done, err
}

// AddFile creates one new file remotely and records it in the snapshot.
func (s *Syncer) AddFile(ctx context.Context, recipeName, message, rel string) error {
	return s.withLock(func() error {
		r := s.kitchen.Recipe(recipeName)
		if !r.Exists() {
			return errors.Wrapf(recipe.ErrNotARecipeOrKitchen, "recipe %s has no local working copy", recipeName)
		}
		return s.addFile(ctx, r, recipe.NewHashStore(r, s.hasher), message, rel)
	})
}

func (s *Syncer) addFile(ctx context.Context, r *kitchen.Recipe, store *recipe.HashStore, message, rel string) error {
	ignore := recipe.NewIgnoreList(r.Root())
	ignore.Load()
	if ignore.ShouldIgnore(rel) {
		return errors.Wrapf(ErrPathIgnored, "%s", rel)
	}

	if !utils.FileExists(r.AbsPath(rel)) {
		return errors.Newf("%s does not exist", rel)
	}
	data, err := s.readLocal(r, rel)
	if err != nil {
		return err
	}

	if err := s.remote.AddFile(ctx, s.kitchen.Name, r.Name, message, rel, string(data)); err != nil {
		return errors.Wrapf(err, "add %s", rel)
	}
	return store.RecordFileAdded(rel)
}

// DeleteFiles deletes files remotely, then drops them from the snapshot and
// the working copy. A failed local removal is logged, not returned.
func (s *Syncer) DeleteFiles(ctx context.Context, recipeName, message string, rels []string) ([]string, error) {
	var done []string
	err := s.withLock(func() error {
		r := s.kitchen.Recipe(recipeName)
		if !r.Exists() {
			return errors.Wrapf(recipe.ErrNotARecipeOrKitchen, "recipe %s has no local working copy", recipeName)
		}
		store := recipe.NewHashStore(r, s.hasher)

		for _, rel := range rels {
			if err := s.remote.DeleteFile(ctx, s.kitchen.Name, recipeName, message, rel); err != nil {
				return errors.Wrapf(err, "delete %s", rel)
			}
			if err := store.RecordFileDeleted(rel); err != nil {
				return err
			}
			if err := os.Remove(r.AbsPath(rel)); err != nil && !os.IsNotExist(err) {
				slog.Warn("file delete local", "recipe", recipeName, "file", rel, "error", err)
			}
			done = append(done, rel)
			slog.Info("file delete", "recipe", recipeName, "file", rel)
		}
		return nil
	})
	return done, err
}

// RevertFile replaces the local copy of rel with the remote content.
func (s *Syncer) RevertFile(ctx context.Context, recipeName, rel string) error {
	return s.withLock(func() error {
		r := s.kitchen.Recipe(recipeName)
		if !r.Exists() {
			return errors.Wrapf(recipe.ErrNotARecipeOrKitchen, "recipe %s has no local working copy", recipeName)
		}

		resp, err := s.remote.Get(ctx, s.kitchen.Name, recipeName, []string{rel})
		if err != nil {
			return errors.Wrapf(err, "get %s", rel)
		}

		full := path.Join(recipeName, rel)
		folder, filename := path.Dir(full), path.Base(full)
		for i := range resp.Recipes[recipeName][folder] {
			f := &resp.Recipes[recipeName][folder][i]
			if f.Filename != filename {
				continue
			}
			if _, err := s.writeRemoteFile(folder, f); err != nil {
				return err
			}
			slog.Info("file revert", "recipe", recipeName, "file", rel)
			return recipe.NewHashStore(r, s.hasher).RecordFileUpdated(rel)
		}
		return errors.Wrapf(ErrRemoteFileAbsent, "%s", rel)
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
