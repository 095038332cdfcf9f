package recipe

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

const degradedNotice = "No local file change information, modified files will appear as changed locally.\n" +
	"This issue will be solved next time you run recipe-get or recipe-update commands."

// StatusSection is one group of paths in a status report.
type StatusSection struct {
	Title string
	Paths []string
}

// StatusReport summarises a reconciliation for display. Paths are relative to
// the recipe root and sorted.
type StatusReport struct {
	Degraded       bool
	LocalModified  []string
	RemoteModified []string
	LocalOnly      []string
	LocalOnlyDirs  []string
	RemoteOnly     []string
	RemoteOnlyDirs []string
	UnchangedCount int
}

func NewStatusReport(res *ReconciliationResult) *StatusReport {
	name := res.RecipeName
	rep := &StatusReport{
		Degraded:       res.Degraded,
		LocalOnly:      filePaths(name, res.OnlyLocal),
		LocalOnlyDirs:  folderPaths(name, res.OnlyLocalDir),
		RemoteOnly:     filePaths(name, res.OnlyRemote),
		RemoteOnlyDirs: folderPaths(name, res.OnlyRemoteDir),
		UnchangedCount: res.Same.FileCount(),
	}

	for folder, files := range res.Different {
		for _, f := range files {
			p := StripRecipe(name, path.Join(folder, f.Filename))
			if res.ChangedLocally(folder, f.Filename) {
				rep.LocalModified = append(rep.LocalModified, p)
			} else {
				rep.RemoteModified = append(rep.RemoteModified, p)
			}
		}
	}
	sort.Strings(rep.LocalModified)
	sort.Strings(rep.RemoteModified)
	return rep
}

// Sections returns the non-empty groups in display order.
func (r *StatusReport) Sections() []StatusSection {
	all := []StatusSection{
		{"files are modified on local", r.LocalModified},
		{"files are modified on remote", r.RemoteModified},
		{"files are local only", r.LocalOnly},
		{"directories are local only", r.LocalOnlyDirs},
		{"files are remote only", r.RemoteOnly},
		{"directories are remote only", r.RemoteOnlyDirs},
	}
	var out []StatusSection
	for _, s := range all {
		if len(s.Paths) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func (r *StatusReport) String() string {
	var lines []string
	if r.Degraded {
		lines = append(lines, degradedNotice)
	}
	for _, s := range r.Sections() {
		var b strings.Builder
		fmt.Fprintf(&b, "%d %s:\n", len(s.Paths), s.Title)
		for _, p := range s.Paths {
			fmt.Fprintf(&b, "\t%s\n", p)
		}
		lines = append(lines, b.String())
	}
	if r.UnchangedCount > 0 {
		lines = append(lines, fmt.Sprintf("%d files are unchanged\n", r.UnchangedCount))
	}
	return strings.Join(lines, "\n")
}

func filePaths(recipeName string, t TreeState) []string {
	var out []string
	for folder, files := range t {
		for _, f := range files {
			out = append(out, StripRecipe(recipeName, path.Join(folder, f.Filename)))
		}
	}
	sort.Strings(out)
	return out
}

func folderPaths(recipeName string, t TreeState) []string {
	var out []string
	for folder := range t {
		if p := StripRecipe(recipeName, folder); p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
