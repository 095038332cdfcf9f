package merge

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
	mapset "github.com/deckarep/golang-set/v2"
)

// Artifact suffixes of a staged file.
const (
	ArtifactBase     = "base"
	ArtifactLeft     = "left"
	ArtifactRight    = "right"
	ArtifactMerge    = "merge"
	ArtifactResolved = "resolved"
)

var (
	ErrMissingKitchen = errors.New("source and target kitchen are required")
	ErrNoPreview      = errors.New("no merge preview for this kitchen pair")
	ErrNotStaged      = errors.New("file is not staged in the merge working set")
	ErrUnsafePath     = errors.New("path escapes its base directory")
	ErrMergeFailed    = errors.New("kitchen merge failed")
	ErrLocalConflicts = errors.New("local recipes have unresolved conflicts")
	ErrRecipesMissing = errors.New("conflicted recipes are not available locally")
)

// rawExtensions are sent to the manual merge endpoint as text, everything
// else base64 encoded.
var rawExtensions = map[string]bool{
	".json": true,
	".txt":  true,
	".md":   true,
	".sql":  true,
}

// Orchestrator drives a kitchen merge through preview, resolve and commit.
// Every kitchen pair gets its own working set under the merge dir:
//
//	<mergeDir>/<from>_to_<to>/<file>.{base,left,right,merge,resolved}
//
// local is the kitchen the command runs in and may be nil. It is where
// conflicts of an automatic merge are written back.
type Orchestrator struct {
	remote   Remote
	mergeDir string
	local    *kitchen.Kitchen
}

func NewOrchestrator(remote Remote, mergeDir string, local *kitchen.Kitchen) *Orchestrator {
	return &Orchestrator{
		remote:   remote,
		mergeDir: mergeDir,
		local:    local,
	}
}

// WorkingDir is the working set directory of a kitchen pair.
func (o *Orchestrator) WorkingDir(from, to string) string {
	return filepath.Join(o.mergeDir, from+"_to_"+to)
}

// ArtifactPath is the staged artifact of kind for file.
func (o *Orchestrator) ArtifactPath(from, to, file, kind string) (string, error) {
	dir := o.WorkingDir(from, to)
	p := filepath.Join(dir, filepath.FromSlash(file)) + "." + kind
	if file == "" || !utils.IsWithin(dir, p) {
		return "", errors.Wrapf(ErrUnsafePath, "%q", file)
	}
	return p, nil
}

type PreviewEntry struct {
	File   string
	Status string
}

type PreviewResult struct {
	From    string
	To      string
	Dir     string
	Entries []PreviewEntry
}

// Preview asks the server which files differ between the kitchens and
// stages the artifacts of every conflicted file. A file that already has a
// .resolved artifact is reported as resolved. clean drops the previous
// working set first.
func (o *Orchestrator) Preview(ctx context.Context, from, to string, clean bool) (*PreviewResult, error) {
	if err := requireKitchens(from, to); err != nil {
		return nil, err
	}

	items, err := o.remote.MergePreview(ctx, from, to)
	if err != nil {
		return nil, errors.Wrapf(err, "merge preview %s to %s", from, to)
	}

	dir := o.WorkingDir(from, to)
	if clean {
		if err := utils.ClearDir(dir); err != nil {
			return nil, errors.Wrap(err, "clear merge working set")
		}
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, errors.Wrap(err, "create merge working set")
	}

	res := &PreviewResult{From: from, To: to, Dir: dir}
	conflicted := mapset.NewSet[string]()
	for i := range items {
		item := &items[i]
		status := item.Status
		if item.IsConflict() {
			if err := o.stage(from, to, item); err != nil {
				return nil, err
			}
			conflicted.Add(item.File)
			resolved, err := o.ArtifactPath(from, to, item.File, ArtifactResolved)
			if err != nil {
				return nil, err
			}
			if utils.FileExists(resolved) {
				status = dksdk.PreviewStatusResolved
			}
		}
		res.Entries = append(res.Entries, PreviewEntry{File: item.File, Status: status})
	}

	if err := o.dropStale(from, to, conflicted); err != nil {
		return nil, err
	}

	slog.Debug("merge preview", "from", from, "to", to, "files", len(res.Entries), "dir", dir)
	return res, nil
}

// dropStale removes the artifacts of staged files that are no longer in
// conflict, so they do not hold back a commit.
func (o *Orchestrator) dropStale(from, to string, conflicted mapset.Set[string]) error {
	staged, err := o.Staged(from, to)
	if err != nil {
		return err
	}
	for _, f := range staged {
		if conflicted.Contains(f.File) {
			continue
		}
		for _, kind := range []string{ArtifactBase, ArtifactLeft, ArtifactRight, ArtifactMerge, ArtifactResolved} {
			p, err := o.ArtifactPath(from, to, f.File, kind)
			if err != nil {
				return err
			}
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "drop stale artifact %s", p)
			}
		}
		slog.Debug("merge preview dropped stale file", "file", f.File)
	}
	return nil
}

func (o *Orchestrator) stage(from, to string, item *dksdk.MergePreviewItem) error {
	artifacts, err := item.Artifacts()
	if err != nil {
		return err
	}
	for kind, data := range artifacts {
		p, err := o.ArtifactPath(from, to, item.File, kind)
		if err != nil {
			return err
		}
		if err := utils.EnsureParent(p); err != nil {
			return err
		}
		if err := utils.WriteFileAtomic(p, data, 0o644); err != nil {
			return errors.Wrapf(err, "stage %s", p)
		}
	}
	return nil
}

// Resolve records the resolution of a staged file. A .resolved artifact
// written by the merge tool is kept as is; otherwise the .merge artifact
// becomes the resolution. fromBase takes the .base artifact instead.
func (o *Orchestrator) Resolve(from, to, file string, fromBase bool) (string, error) {
	if err := requireKitchens(from, to); err != nil {
		return "", err
	}
	file = stagedName(file)

	base, err := o.ArtifactPath(from, to, file, ArtifactBase)
	if err != nil {
		return "", err
	}
	if !utils.FileExists(base) {
		return "", notStaged(file)
	}
	resolved, _ := o.ArtifactPath(from, to, file, ArtifactResolved)

	switch {
	case fromBase:
		err = utils.CopyFile(base, resolved)
	case utils.FileExists(resolved):
		slog.Debug("keeping resolution", "file", file)
		return resolved, nil
	default:
		merged, _ := o.ArtifactPath(from, to, file, ArtifactMerge)
		if !utils.FileExists(merged) {
			return "", notStaged(file)
		}
		err = utils.CopyFile(merged, resolved)
	}
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", file)
	}
	return resolved, nil
}

// StagedFile is one conflicted file of a working set.
type StagedFile struct {
	File     string
	Resolved bool
}

// Staged lists the staged files of a working set by their .base artifact.
func (o *Orchestrator) Staged(from, to string) ([]StagedFile, error) {
	dir := o.WorkingDir(from, to)
	if !utils.DirExists(dir) {
		return nil, errors.WithHint(
			errors.Wrapf(ErrNoPreview, "%s to %s", from, to),
			"run 'dk kitchen-merge-preview' before 'dk kitchen-merge'",
		)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*."+ArtifactBase)
	if err != nil {
		return nil, errors.Wrap(err, "scan merge working set")
	}
	sort.Strings(matches)

	staged := make([]StagedFile, 0, len(matches))
	for _, m := range matches {
		file := strings.TrimSuffix(m, "."+ArtifactBase)
		resolved, err := o.ArtifactPath(from, to, file, ArtifactResolved)
		if err != nil {
			return nil, err
		}
		staged = append(staged, StagedFile{File: file, Resolved: utils.FileExists(resolved)})
	}
	return staged, nil
}

// Outcome is the result of a kitchen merge.
type Outcome struct {
	From string
	To   string
	// Manual is set when the merge carried resolved files.
	Manual   bool
	Files    []string
	Response *dksdk.MergeKitchensResponse
	// ConflictsWritten is set when conflicts of an automatic merge were
	// written into the local recipes.
	ConflictsWritten bool
	Report           string
}

func (o *Outcome) Merged() bool {
	return o.Response != nil && o.Response.OK()
}

// Commit finishes the merge of a previewed kitchen pair. Every staged file
// must have a .resolved artifact, otherwise nothing is sent. Without staged
// files the server merges on its own; with them all resolutions go out in
// one manual merge. The working set is cleared once the merge succeeded.
func (o *Orchestrator) Commit(ctx context.Context, from, to string) (*Outcome, error) {
	if err := requireKitchens(from, to); err != nil {
		return nil, err
	}

	staged, err := o.Staged(from, to)
	if err != nil {
		return nil, err
	}

	var unresolved []string
	files := make(map[string]string, len(staged))
	for _, sf := range staged {
		if !sf.Resolved {
			unresolved = append(unresolved, sf.File)
			continue
		}
		p, _ := o.ArtifactPath(from, to, sf.File, ArtifactResolved)
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read resolution of %s", sf.File)
		}
		files[sf.File] = encodeResolved(sf.File, data)
		slog.Debug("merge resolution", "file", sf.File)
	}
	if len(unresolved) > 0 {
		return nil, recipe.NewUnresolvedConflictsError(unresolved)
	}

	var out *Outcome
	if len(files) == 0 {
		out, err = o.ImprovedMerge(ctx, from, to)
		if err != nil {
			return nil, err
		}
	} else {
		resp, err := o.remote.ManualMerge(ctx, from, to, files)
		if err != nil {
			return nil, errors.Wrapf(err, "manual merge %s to %s", from, to)
		}
		out = &Outcome{
			From:     from,
			To:       to,
			Manual:   true,
			Files:    sortedKeys(files),
			Response: resp,
			Report:   "Merge done. You can check your changes in the target kitchen and delete the source kitchen.\n",
		}
	}

	if out.Merged() {
		if err := utils.ClearDir(o.WorkingDir(from, to)); err != nil {
			slog.Warn("merge working set not cleared", "dir", o.WorkingDir(from, to), "error", err)
		}
	}
	return out, nil
}

func encodeResolved(file string, data []byte) string {
	if rawExtensions[strings.ToLower(path.Ext(file))] {
		return string(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// stagedName accepts a staged file name with or without an artifact suffix.
func stagedName(file string) string {
	file = utils.ToSlash(file)
	for _, kind := range []string{ArtifactBase, ArtifactLeft, ArtifactRight, ArtifactMerge, ArtifactResolved} {
		if trimmed, ok := strings.CutSuffix(file, "."+kind); ok {
			return trimmed
		}
	}
	return file
}

func notStaged(file string) error {
	return errors.WithHint(
		errors.Wrapf(ErrNotStaged, "%s", file),
		"run 'dk kitchen-merge-preview' and use a path it listed as conflict",
	)
}

func requireKitchens(from, to string) error {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return ErrMissingKitchen
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
