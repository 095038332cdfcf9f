package merge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
	mapset "github.com/deckarep/golang-set/v2"
)

// ImprovedMerge lets the server merge the kitchens, passing the conflicts
// already resolved in the local kitchen. Local conflicts of the same pair
// that are still unresolved stop the merge before any request. Conflicts
// reported by the server are written into the local recipes and recorded as
// unresolved.
func (o *Orchestrator) ImprovedMerge(ctx context.Context, from, to string) (*Outcome, error) {
	if err := requireKitchens(from, to); err != nil {
		return nil, err
	}

	var resolved dksdk.ResolvedConflicts
	if o.local != nil {
		open, err := LocalConflicts(o.local, from, to, recipe.ConflictUnresolved)
		if err != nil {
			return nil, err
		}
		if len(open) > 0 {
			return nil, errors.WithHint(
				errors.Wrapf(ErrLocalConflicts, "\n%s", FormatUnresolved(open)),
				"fix the files, mark each one with 'dk conflict-resolve', then rerun the merge",
			)
		}

		done, err := LocalConflicts(o.local, from, to, recipe.ConflictResolved)
		if err != nil {
			return nil, err
		}
		resolved = toResolvedConflicts(done)
	}

	resp, err := o.remote.Merge(ctx, from, to, resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "merge %s to %s", from, to)
	}

	out := &Outcome{From: from, To: to, Response: resp}
	switch {
	case resp.OK():
		out.Report = FormatMergeSuccess(resp)
	case resp.HasConflicts():
		report := FormatMergeConflicts(resp)
		if o.local == nil {
			out.Report = report
			return out, nil
		}
		written, err := o.writeConflicts(from, to, resp)
		if err != nil {
			return nil, err
		}
		if !written {
			out.Report = "No recipe folder found on disk.\n" + report
			return out, nil
		}
		out.ConflictsWritten = true
		out.Report = report + "Conflicts written to disk\n"
	default:
		return nil, errors.Wrapf(ErrMergeFailed, "%s to %s: status %q", from, to, resp.Result.Status)
	}
	return out, nil
}

// writeConflicts puts the conflict payloads into the local recipe files.
// Every conflicted recipe has to be present locally. It reports false when
// the kitchen holds no recipe at all.
func (o *Orchestrator) writeConflicts(from, to string, resp *dksdk.MergeKitchensResponse) (bool, error) {
	names, err := o.local.Recipes()
	if err != nil {
		return false, err
	}
	if len(names) == 0 {
		return false, nil
	}

	conflicts := resp.Result.MergeInfo.Conflicts
	local := mapset.NewSet(names...)
	var missing []string
	for name := range conflicts {
		if !local.Contains(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return false, errors.WithHint(
			errors.Wrapf(ErrRecipesMissing, "%s", strings.Join(missing, ", ")),
			fmt.Sprintf("run 'dk recipe-get' for them in %s, then rerun the merge", o.local.Root),
		)
	}

	for _, name := range sortedKeys(conflicts) {
		r := o.local.Recipe(name)
		store := recipe.NewConflictStore(r)
		for _, folder := range sortedKeys(conflicts[name]) {
			for _, c := range conflicts[name][folder] {
				if err := writeConflict(o.local, r, store, from, to, folder, c); err != nil {
					return false, err
				}
			}
		}
		slog.Info("merge conflicts written", "recipe", name, "dir", r.Root())
	}
	return true, nil
}

func writeConflict(k *kitchen.Kitchen, r *kitchen.Recipe, store *recipe.ConflictStore, from, to, folder string, c dksdk.ConflictInfo) error {
	target := filepath.Join(k.Root, filepath.FromSlash(folder), c.Filename)
	if !utils.IsWithin(r.Root(), target) {
		return errors.Wrapf(ErrUnsafePath, "%s/%s", folder, c.Filename)
	}
	if c.ConflictTags == "" {
		return errors.Newf("no conflict content for %s/%s", folder, c.Filename)
	}

	data, err := base64.StdEncoding.DecodeString(c.ConflictTags)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "conflict content of %s/%s", folder, c.Filename), dksdk.ErrMalformedResponse)
	}
	if err := utils.EnsureParent(target); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(target, data, 0o644); err != nil {
		return errors.Wrapf(err, "write conflict %s", target)
	}

	return store.Add(recipe.ConflictRecord{
		FromKitchen:    from,
		ToKitchen:      to,
		FolderInRecipe: folder,
		Filename:       c.Filename,
		SHA:            c.SHA,
		ConflictTags:   c.ConflictTags,
	})
}

// LocalConflicts collects the conflicts with the given status of every local
// recipe, keyed by recipe. Empty from or to match any kitchen.
func LocalConflicts(k *kitchen.Kitchen, from, to string, status recipe.ConflictStatus) (map[string]recipe.ConflictDocument, error) {
	names, err := k.Recipes()
	if err != nil {
		return nil, err
	}

	out := make(map[string]recipe.ConflictDocument)
	for _, name := range names {
		store := recipe.NewConflictStore(k.Recipe(name))

		var doc recipe.ConflictDocument
		if status == recipe.ConflictResolved {
			doc, err = store.ListResolved(from, to)
		} else {
			doc, err = store.ListUnresolved(from, to)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "conflicts of recipe %s", name)
		}
		if doc.Len() > 0 {
			out[name] = doc
		}
	}
	return out, nil
}

func toResolvedConflicts(docs map[string]recipe.ConflictDocument) dksdk.ResolvedConflicts {
	if len(docs) == 0 {
		return nil
	}
	out := make(dksdk.ResolvedConflicts, len(docs))
	for name, doc := range docs {
		folders := make(map[string]map[string]dksdk.ConflictInfo, len(doc))
		for folder, recs := range doc {
			byKey := make(map[string]dksdk.ConflictInfo, len(recs))
			for key, rec := range recs {
				byKey[key] = dksdk.ConflictInfo{
					Filename:       rec.Filename,
					FromKitchen:    rec.FromKitchen,
					ToKitchen:      rec.ToKitchen,
					SHA:            rec.SHA,
					FolderInRecipe: rec.FolderInRecipe,
					ConflictTags:   rec.ConflictTags,
					Status:         string(rec.Status),
				}
			}
			folders[folder] = byKey
		}
		out[name] = folders
	}
	return out
}
