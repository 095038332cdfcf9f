package sync

import (
	"context"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

// Literal markers the merge endpoint leaves in a file it could not merge.
const (
	MarkerYours     = "<<<<<<<"
	MarkerSeparator = "======="
	MarkerTheirs    = ">>>>>>>"
)

// PullPolicy controls what a pull may change locally.
type PullPolicy struct {
	// OverwriteLocal replaces differing files with the remote content instead
	// of merging them.
	OverwriteLocal bool
	// DeleteOrphans removes files and folders that only exist locally.
	DeleteOrphans bool
}

// HasConflictMarkers reports whether data holds all three merge markers.
func HasConflictMarkers(data []byte) bool {
	s := string(data)
	return strings.Contains(s, MarkerYours) &&
		strings.Contains(s, MarkerSeparator) &&
		strings.Contains(s, MarkerTheirs)
}

// Pull brings the working copy of recipeName up to date with the remote
// kitchen. A recipe without a working copy is fetched whole.
func (s *Syncer) Pull(ctx context.Context, recipeName string, policy PullPolicy) (*PullSummary, error) {
	var sum *PullSummary
	err := s.withLock(func() error {
		var err error
		r := s.kitchen.Recipe(recipeName)
		if r.Exists() {
			sum, err = s.pullExisting(ctx, r, policy)
		} else {
			sum, err = s.pullNew(ctx, r)
		}
		return err
	})
	return sum, err
}

func (s *Syncer) pullNew(ctx context.Context, r *kitchen.Recipe) (*PullSummary, error) {
	if utils.DirExists(r.Root()) {
		entries, err := os.ReadDir(r.Root())
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", r.Root())
		}
		if len(entries) > 0 {
			return nil, errors.WithHint(
				errors.Wrapf(ErrNotAWorkingCopy, "%s", r.Root()),
				"move the directory away and run recipe-get again",
			)
		}
	}

	resp, err := s.remote.Get(ctx, s.kitchen.Name, r.Name, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "get recipe %s", r.Name)
	}
	files, ok := resp.Recipes[r.Name]
	if !ok {
		return nil, recipe.RecipeNotFound(s.kitchen.Name, r.Name)
	}

	sum := &PullSummary{Recipe: r.Name, Created: true}
	if err := utils.EnsureDir(r.Root()); err != nil {
		return nil, errors.Wrapf(err, "create %s", r.Root())
	}

	for _, folder := range sortedFolders(files) {
		dir, err := s.localPath(folder, "")
		if err == nil {
			err = utils.EnsureDir(dir)
		}
		if err != nil {
			sum.fail(folder, err)
			continue
		}
		for i := range files[folder] {
			f := &files[folder][i]
			full := path.Join(folder, f.Filename)
			data, err := s.writeRemoteFile(folder, f)
			if err != nil {
				sum.fail(full, err)
				continue
			}
			sum.fetched(full, len(data))
		}
	}

	if err := r.WriteMeta(resp.OrigHead); err != nil {
		return sum, errors.Wrap(err, "write recipe meta")
	}

	walker := recipe.NewWalker(r.Root())
	walker.Hasher = s.hasher
	local, err := walker.Walk(r.Root())
	if err != nil {
		return sum, err
	}
	if err := recipe.NewHashStore(r, s.hasher).Save(local); err != nil {
		return sum, errors.Wrap(err, "save recipe snapshot")
	}

	slog.Info("recipe get", "recipe", r.Name, "files", len(sum.Fetched), "orig_head", resp.OrigHead)
	return sum, nil
}

func (s *Syncer) pullExisting(ctx context.Context, r *kitchen.Recipe, policy PullPolicy) (*PullSummary, error) {
	snap, err := s.Reconcile(ctx, r.Name)
	if err != nil {
		return nil, err
	}
	res := snap.Result
	sum := &PullSummary{Recipe: r.Name}

	// full path -> hash of what is now on disk and matches remote
	synced := make(map[string]string)
	for p, sha := range res.Same.Paths() {
		synced[p] = sha
	}

	s.applyDifferent(ctx, snap, policy, sum, synced)
	origHead := s.applyOnlyRemote(ctx, snap, sum, synced)

	if policy.DeleteOrphans {
		s.deleteOrphans(snap, sum)
	}

	if err := s.saveAfterPull(snap, synced); err != nil {
		return sum, err
	}

	if origHead == "" {
		origHead = snap.OrigHead
	}
	if origHead != "" && len(sum.Conflicted) == 0 && len(sum.Failed) == 0 {
		if err := r.SetOrigHead(origHead); err != nil {
			return sum, errors.Wrap(err, "write ORIG_HEAD")
		}
	}

	slog.Info("recipe get",
		"recipe", r.Name,
		"fetched", len(sum.Fetched),
		"merged", len(sum.Merged),
		"conflicts", len(sum.Conflicted),
		"deleted", len(sum.Deleted),
		"failed", len(sum.Failed),
	)
	return sum, nil
}

// applyDifferent merges (or overwrites) every differing file. Files whose merge
// carries conflict markers are left untouched and recorded as conflicts.
func (s *Syncer) applyDifferent(ctx context.Context, snap *Snapshot, policy PullPolicy, sum *PullSummary, synced map[string]string) {
	r := snap.Recipe
	res := snap.Result
	if res.Different.FileCount() == 0 {
		return
	}

	origHead := ""
	if !policy.OverwriteLocal {
		var err error
		origHead, err = r.OrigHead()
		if err != nil {
			err = errors.WithHint(err, "use --force to replace local files with the remote content")
			for p := range res.Different.Paths() {
				sum.fail(p, err)
			}
			return
		}
	}

	conflicts := recipe.NewConflictStore(r)
	for _, full := range sortedPaths(res.Different) {
		folder, filename := path.Split(full)
		folder = strings.TrimSuffix(folder, "/")
		rel := recipe.StripRecipe(r.Name, full)

		var data []byte
		if policy.OverwriteLocal {
			contents, err := s.remote.File(ctx, s.kitchen.Name, r.Name, rel)
			if err != nil {
				sum.fail(full, err)
				continue
			}
			data = []byte(contents)
		} else {
			local, err := s.readLocal(r, rel)
			if err != nil {
				sum.fail(full, err)
				continue
			}
			lastSHA := lastFileSHAUnknown
			if rec, ok := lookupPath(snap.Baseline, full); ok && rec.SHA != "" {
				lastSHA = rec.SHA
			}
			resp, err := s.remote.MergeFile(ctx, s.kitchen.Name, r.Name, rel, local, origHead, lastSHA)
			if err != nil {
				sum.fail(full, err)
				continue
			}
			if !resp.OK() {
				sum.fail(full, errors.Newf("merge status %q: %s", resp.Status, resp.Error))
				continue
			}
			if data, err = resp.Merged(); err != nil {
				sum.fail(full, err)
				continue
			}
			if HasConflictMarkers(data) {
				err := conflicts.Add(recipe.ConflictRecord{
					FromKitchen:    s.kitchen.Name,
					ToKitchen:      s.kitchen.Name,
					RecipeName:     r.Name,
					FolderInRecipe: folder,
					Filename:       filename,
					SHA:            lastSHA,
					ConflictTags:   string(data),
				})
				if err != nil {
					sum.fail(full, errors.Wrap(err, "record conflict"))
					continue
				}
				sum.Conflicted = append(sum.Conflicted, full)
				slog.Warn("merge conflict, local file kept", "recipe", r.Name, "file", rel)
				continue
			}
		}

		if err := s.writeLocal(r.AbsPath(rel), data); err != nil {
			sum.fail(full, err)
			continue
		}
		if policy.OverwriteLocal {
			synced[full] = s.hasher.Hash(data)
			sum.fetched(full, len(data))
		} else {
			// a merge may keep local edits, so the baseline is the remote
			// version it was merged with
			if rec, ok := lookupPath(snap.Remote, full); ok {
				synced[full] = rec.SHA
			}
			sum.Merged = append(sum.Merged, full)
			sum.Bytes += uint64(len(data))
		}
	}
}

// applyOnlyRemote fetches remote-only files. Folders missing locally are
// requested with one "folder/*" wildcard each, keeping only the outermost of
// nested folders; the remaining files are requested by path. It returns the
// ORIG_HEAD reported by the fetches.
func (s *Syncer) applyOnlyRemote(ctx context.Context, snap *Snapshot, sum *PullSummary, synced map[string]string) string {
	r := snap.Recipe
	res := snap.Result

	for _, folder := range res.OnlyRemoteDir.Folders() {
		dir, err := s.localPath(folder, "")
		if err == nil {
			err = utils.EnsureDir(dir)
		}
		if err != nil {
			sum.fail(folder, err)
		}
	}

	if res.OnlyRemote.FileCount() == 0 {
		return ""
	}

	wanted := mapset.NewSet[string]()
	for p := range res.OnlyRemote.Paths() {
		wanted.Add(p)
	}

	var requests [][]string
	covered := mapset.NewSet[string]()
	for _, folder := range minimalFolders(res.OnlyRemoteDir) {
		rel := recipe.StripRecipe(r.Name, folder)
		if rel == "" {
			continue
		}
		requests = append(requests, []string{rel + "/*"})
		for p := range wanted.Iter() {
			if strings.HasPrefix(p, folder+"/") {
				covered.Add(p)
			}
		}
	}

	var single []string
	for _, p := range sortedSet(wanted.Difference(covered)) {
		single = append(single, recipe.StripRecipe(r.Name, p))
	}
	for len(single) > 0 {
		n := min(fetchBatchSize, len(single))
		requests = append(requests, single[:n])
		single = single[n:]
	}

	type fetched struct {
		files    dksdk.RemoteRecipe
		origHead string
	}
	var (
		mu      sync.Mutex
		results []fetched
		failed  []error
	)

	var g errgroup.Group
	g.SetLimit(s.fetchConcurrency)
	for _, req := range requests {
		g.Go(func() error {
			resp, err := s.remote.Get(ctx, s.kitchen.Name, r.Name, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, errors.Wrapf(err, "get %s", strings.Join(req, ", ")))
				return nil
			}
			results = append(results, fetched{files: resp.Recipes[r.Name], origHead: resp.OrigHead})
			return nil
		})
	}
	_ = g.Wait()

	origHead := ""
	for _, got := range results {
		if got.origHead != "" {
			origHead = got.origHead
		}
		for folder, files := range got.files {
			for i := range files {
				f := &files[i]
				full := path.Join(folder, f.Filename)
				// only write what the reconcile classified as remote only
				if !wanted.Contains(full) {
					continue
				}
				data, err := s.writeRemoteFile(folder, f)
				if err != nil {
					sum.fail(full, err)
				} else {
					synced[full] = s.hasher.Hash(data)
					sum.fetched(full, len(data))
				}
				wanted.Remove(full)
			}
		}
	}

	fetchErr := ErrRemoteFileAbsent
	if len(failed) > 0 {
		fetchErr = failed[0]
	}
	for _, p := range sortedSet(wanted) {
		sum.fail(p, fetchErr)
	}

	return origHead
}

// deleteOrphans removes local-only files and then local-only folders.
func (s *Syncer) deleteOrphans(snap *Snapshot, sum *PullSummary) {
	res := snap.Result
	for _, full := range sortedPaths(res.OnlyLocal) {
		p, err := s.localPath(full, "")
		if err == nil {
			err = os.Remove(p)
		}
		if err != nil && !os.IsNotExist(err) {
			sum.fail(full, err)
			continue
		}
		sum.Deleted = append(sum.Deleted, full)
	}

	for _, folder := range minimalFolders(res.OnlyLocalDir) {
		p, err := s.localPath(folder, "")
		if err == nil {
			err = os.RemoveAll(p)
		}
		if err != nil {
			sum.fail(folder, err)
			continue
		}
		sum.Deleted = append(sum.Deleted, folder+"/")
	}
}

// saveAfterPull records the files now known to match remote. Files that were
// not brought in sync keep their previous baseline entry.
func (s *Syncer) saveAfterPull(snap *Snapshot, synced map[string]string) error {
	paths := make(map[string]string, len(synced))
	if snap.Baseline != nil {
		for p, sha := range snap.Baseline.Paths() {
			if _, stillRemote := lookupPath(snap.Remote, p); stillRemote {
				paths[p] = sha
			}
		}
	}
	for p, sha := range synced {
		paths[p] = sha
	}

	if err := recipe.NewHashStore(snap.Recipe, s.hasher).Save(recipe.TreeFromPaths(paths)); err != nil {
		return errors.Wrap(err, "save recipe snapshot")
	}
	return nil
}

func lookupPath(t recipe.TreeState, full string) (recipe.FileRecord, bool) {
	return t.Lookup(path.Dir(full), path.Base(full))
}

// minimalFolders drops every folder nested in another one of the set.
func minimalFolders(t recipe.TreeState) []string {
	folders := t.Folders()
	var out []string
	for _, f := range folders {
		nested := false
		for _, parent := range out {
			if strings.HasPrefix(f, parent+"/") {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, f)
		}
	}
	return out
}

func sortedPaths(t recipe.TreeState) []string {
	paths := make([]string, 0, t.FileCount())
	for p := range t.Paths() {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func sortedSet(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

func sortedFolders(r dksdk.RemoteRecipe) []string {
	out := make([]string, 0, len(r))
	for folder := range r {
		out = append(out, folder)
	}
	sort.Strings(out)
	return out
}
