package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
)

const (
	defaultFetchConcurrency = 4
	fetchBatchSize          = 50

	// lastFileSHAUnknown is sent to the merge endpoint for files without a
	// baseline entry; the server falls back to ORIG_HEAD as the merge base.
	lastFileSHAUnknown = "none"
)

var (
	ErrBinaryFile       = errors.New("binary files cannot be sent to the recipe")
	ErrPathIgnored      = errors.New("path is excluded by the ignore rules")
	ErrUpdateRejected   = errors.New("recipe update rejected")
	ErrNotAWorkingCopy  = errors.New("directory exists but is not a recipe working copy")
	ErrRemoteFileAbsent = errors.New("file does not exist in the remote recipe")
	ErrKitchenOutOfSync = errors.New("local kitchen is out of sync with remote")
)

// Syncer applies reconciliation results between the recipes of one local
// kitchen and the remote service.
type Syncer struct {
	kitchen          *kitchen.Kitchen
	remote           Remote
	hasher           recipe.ContentHasher
	fetchConcurrency int
}

func NewSyncer(k *kitchen.Kitchen, remote Remote) *Syncer {
	return &Syncer{
		kitchen:          k,
		remote:           remote,
		hasher:           recipe.DefaultHasher,
		fetchConcurrency: defaultFetchConcurrency,
	}
}

func (s *Syncer) Kitchen() *kitchen.Kitchen {
	return s.kitchen
}

// SetFetchConcurrency bounds the parallel recipe get requests of a pull.
func (s *Syncer) SetFetchConcurrency(n int) {
	if n > 0 {
		s.fetchConcurrency = n
	}
}

// Snapshot is one reconcile cycle. The working copy is walked once and every
// decision of the cycle is made against that walk.
type Snapshot struct {
	Recipe   *kitchen.Recipe
	Remote   recipe.TreeState
	Local    recipe.TreeState
	Baseline recipe.TreeState
	Result   *recipe.ReconciliationResult

	// OrigHead is the remote head sent with the tree, empty when the server
	// does not report one.
	OrigHead string
}

// Reconcile compares the working copy of recipeName with the remote tree.
func (s *Syncer) Reconcile(ctx context.Context, recipeName string) (*Snapshot, error) {
	r := s.kitchen.Recipe(recipeName)
	if !r.Exists() {
		return nil, errors.Wrapf(recipe.ErrNotARecipeOrKitchen, "recipe %s has no local working copy", recipeName)
	}

	remote, origHead, err := s.remoteTree(ctx, recipeName)
	if err != nil {
		return nil, err
	}

	walker := recipe.NewWalker(r.Root())
	walker.Hasher = s.hasher
	local, err := walker.Walk(r.Root())
	if err != nil {
		return nil, err
	}

	baseline := s.baseline(r)
	reconciler := recipe.Reconciler{Ignore: walker.Ignore}

	return &Snapshot{
		Recipe:   r,
		OrigHead: origHead,
		Remote:   remote,
		Local:    local,
		Baseline: baseline,
		Result:   reconciler.Reconcile(recipeName, remote, local, baseline),
	}, nil
}

// Status reconciles recipeName and renders the result.
func (s *Syncer) Status(ctx context.Context, recipeName string) (*recipe.StatusReport, error) {
	snap, err := s.Reconcile(ctx, recipeName)
	if err != nil {
		return nil, err
	}
	return recipe.NewStatusReport(snap.Result), nil
}

// CheckInSync fails with ErrKitchenOutOfSync naming the first local recipe
// that differs from the remote kitchen.
func (s *Syncer) CheckInSync(ctx context.Context) error {
	names, err := s.kitchen.Recipes()
	if err != nil {
		return err
	}
	for _, name := range names {
		snap, err := s.Reconcile(ctx, name)
		if err != nil {
			return err
		}
		if !snap.Result.IsClean() {
			return errors.WithHint(
				errors.Wrapf(ErrKitchenOutOfSync, "kitchen %s, recipe %s", s.kitchen.Name, name),
				fmt.Sprintf("check %s with 'dk recipe-status' and bring it in sync with recipe-get, recipe-update or file-revert", snap.Recipe.Root()),
			)
		}
	}
	slog.Debug("kitchen in sync", "kitchen", s.kitchen.Name, "recipes", len(names))
	return nil
}

func (s *Syncer) remoteTree(ctx context.Context, recipeName string) (recipe.TreeState, string, error) {
	resp, err := s.remote.Tree(ctx, s.kitchen.Name, recipeName)
	if err != nil {
		var apiErr *dksdk.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, "", recipe.RecipeNotFound(s.kitchen.Name, recipeName)
		}
		return nil, "", errors.Wrapf(err, "remote tree of %s", recipeName)
	}

	tree, ok := resp.Recipes[recipeName]
	if !ok {
		return nil, "", recipe.RecipeNotFound(s.kitchen.Name, recipeName)
	}

	out := make(recipe.TreeState, len(tree))
	for folder, files := range tree {
		out.EnsureFolder(folder)
		for _, f := range files {
			out.Add(folder, recipe.FileRecord{Filename: f.Filename, SHA: f.SHA})
		}
	}
	return out, resp.OrigHead, nil
}

// baseline loads the last synced snapshot. Unreadable snapshots degrade to
// no baseline.
func (s *Syncer) baseline(r *kitchen.Recipe) recipe.TreeState {
	tree, ok, err := recipe.NewHashStore(r, s.hasher).Load()
	if err != nil {
		slog.Warn("recipe snapshot unusable, continuing without baseline", "recipe", r.Name, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return tree
}

// withLock runs fn holding the kitchen lock.
func (s *Syncer) withLock(fn func() error) error {
	if err := s.kitchen.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := s.kitchen.Unlock(); err != nil {
			slog.Warn("kitchen unlock", "kitchen", s.kitchen.Name, "error", err)
		}
	}()
	return fn()
}

// localPath maps a folder key and file name to a path below the kitchen
// root, refusing names that would escape it.
func (s *Syncer) localPath(folder, filename string) (string, error) {
	p := filepath.Join(s.kitchen.Root, filepath.FromSlash(path.Join(folder, filename)))
	if !utils.IsWithin(s.kitchen.Root, p) || p == s.kitchen.Root {
		return "", errors.Newf("remote path %s escapes the kitchen", path.Join(folder, filename))
	}
	return p, nil
}

// writeRemoteFile writes a fetched payload and returns its content.
func (s *Syncer) writeRemoteFile(folder string, f *dksdk.RemoteFile) ([]byte, error) {
	data, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	p, err := s.localPath(folder, f.Filename)
	if err != nil {
		return nil, err
	}
	if err := s.writeLocal(p, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Syncer) writeLocal(p string, data []byte) error {
	if err := utils.EnsureParent(p); err != nil {
		return errors.Wrapf(err, "create parent of %s", p)
	}
	if err := utils.WriteFileAtomic(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", p)
	}
	return nil
}

func (s *Syncer) readLocal(r *kitchen.Recipe, rel string) ([]byte, error) {
	data, err := os.ReadFile(r.AbsPath(rel))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", rel)
	}
	return data, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}
