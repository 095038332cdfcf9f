package recipe

import (
	"log/slog"
	"path"

	mapset "github.com/deckarep/golang-set/v2"
)

// ReconciliationResult is the six-way partition of a remote and a local tree.
// Every (folder, file) pair of either side lands in exactly one of Same,
// Different, OnlyLocal or OnlyRemote. OnlyLocalDir and OnlyRemoteDir hold
// folders missing on the other side, always with an empty file list.
type ReconciliationResult struct {
	RecipeName string

	Same          TreeState
	Different     TreeState
	OnlyLocal     TreeState
	OnlyLocalDir  TreeState
	OnlyRemote    TreeState
	OnlyRemoteDir TreeState

	// LocalChanged and RemoteChanged split Different by origin, keyed by full
	// path ("recipe/folder/file").
	LocalChanged  mapset.Set[string]
	RemoteChanged mapset.Set[string]

	// Degraded is set when no baseline snapshot was available, in which case
	// every difference is attributed to a local change.
	Degraded bool
}

func newResult(recipeName string) *ReconciliationResult {
	return &ReconciliationResult{
		RecipeName:    recipeName,
		Same:          make(TreeState),
		Different:     make(TreeState),
		OnlyLocal:     make(TreeState),
		OnlyLocalDir:  make(TreeState),
		OnlyRemote:    make(TreeState),
		OnlyRemoteDir: make(TreeState),
		LocalChanged:  mapset.NewSet[string](),
		RemoteChanged: mapset.NewSet[string](),
	}
}

// IsClean reports whether the two trees hold the same files and folders.
func (r *ReconciliationResult) IsClean() bool {
	return r.Different.FileCount() == 0 &&
		r.OnlyLocal.FileCount() == 0 &&
		r.OnlyRemote.FileCount() == 0 &&
		len(r.OnlyLocalDir) == 0 &&
		len(r.OnlyRemoteDir) == 0
}

// ChangedLocally reports the attribution of a Different entry.
func (r *ReconciliationResult) ChangedLocally(folder, filename string) bool {
	return r.LocalChanged.Contains(path.Join(folder, filename))
}

// Reconciler partitions trees, skipping whatever the ignore list excludes.
type Reconciler struct {
	Ignore *IgnoreList
}

// Reconcile partitions remote and local for recipeName. baseline may be nil
// when there is no snapshot.
func (rc *Reconciler) Reconcile(recipeName string, remote, local, baseline TreeState) *ReconciliationResult {
	res := newResult(recipeName)

	for folder, files := range remote {
		if rc.ignoredDir(recipeName, folder) {
			continue
		}
		localFiles, folderExists := local[folder]
		if !folderExists {
			res.OnlyRemoteDir.EnsureFolder(folder)
		}
		for _, f := range files {
			if rc.ignored(recipeName, path.Join(folder, f.Filename)) {
				continue
			}
			lf, found := findRecord(localFiles, f.Filename)
			switch {
			case !found:
				res.OnlyRemote.Add(folder, f)
			case lf.SHA == f.SHA:
				res.Same.Add(folder, lf)
			default:
				res.Different.Add(folder, lf)
			}
		}
	}

	for folder, files := range local {
		if rc.ignoredDir(recipeName, folder) {
			continue
		}
		remoteFiles, folderExists := remote[folder]
		if !folderExists {
			res.OnlyLocalDir.EnsureFolder(folder)
		}
		for _, f := range files {
			if rc.ignored(recipeName, path.Join(folder, f.Filename)) {
				continue
			}
			if _, found := findRecord(remoteFiles, f.Filename); !found {
				res.OnlyLocal.Add(folder, f)
			}
		}
	}

	// a folder on one side that is a file path on the other counts as the file
	dropShadowedFolders(res.OnlyLocalDir, remote)
	dropShadowedFolders(res.OnlyRemoteDir, local)

	rc.attribute(res, baseline)
	return res
}

func (rc *Reconciler) attribute(res *ReconciliationResult, baseline TreeState) {
	res.Degraded = baseline == nil
	if res.Degraded && res.Different.FileCount() > 0 {
		slog.Warn("no baseline snapshot, treating all differences as local changes", "recipe", res.RecipeName)
	}

	for folder, files := range res.Different {
		for _, f := range files {
			full := path.Join(folder, f.Filename)
			if res.Degraded {
				res.LocalChanged.Add(full)
				continue
			}
			base, ok := baseline.Lookup(folder, f.Filename)
			if !ok || base.SHA != f.SHA {
				res.LocalChanged.Add(full)
			} else {
				res.RemoteChanged.Add(full)
			}
		}
	}
}

func (rc *Reconciler) ignored(recipeName, p string) bool {
	if rc.Ignore == nil {
		return false
	}
	rel := StripRecipe(recipeName, p)
	return rel != "" && rc.Ignore.ShouldIgnore(rel)
}

func (rc *Reconciler) ignoredDir(recipeName, folder string) bool {
	if rc.Ignore == nil {
		return false
	}
	rel := StripRecipe(recipeName, folder)
	return rel != "" && rc.Ignore.ShouldIgnoreDir(rel)
}

func dropShadowedFolders(dirs TreeState, other TreeState) {
	for folder := range dirs {
		if _, isFile := other.Lookup(path.Dir(folder), path.Base(folder)); isFile {
			delete(dirs, folder)
		}
	}
}

func findRecord(files []FileRecord, filename string) (FileRecord, bool) {
	for _, f := range files {
		if f.Filename == filename {
			return f, true
		}
	}
	return FileRecord{}, false
}
