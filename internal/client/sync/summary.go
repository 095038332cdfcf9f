package sync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/dustin/go-humanize"
)

// FileFailure is a per-file outcome that did not succeed. Other files of the
// same operation are not rolled back.
type FileFailure struct {
	Path string
	Err  error
}

// PullSummary reports every file a pull touched, keyed by full path
// ("recipe/folder/file").
type PullSummary struct {
	Recipe     string
	Created    bool
	Fetched    []string
	Merged     []string
	Conflicted []string
	Deleted    []string
	Failed     []FileFailure
	Bytes      uint64
}

func (s *PullSummary) fetched(full string, size int) {
	s.Fetched = append(s.Fetched, full)
	s.Bytes += uint64(size)
}

func (s *PullSummary) fail(full string, err error) {
	s.Failed = append(s.Failed, FileFailure{Path: full, Err: err})
}

// Changed reports whether the pull wrote, deleted or flagged anything.
func (s *PullSummary) Changed() bool {
	return len(s.Fetched)+len(s.Merged)+len(s.Conflicted)+len(s.Deleted)+len(s.Failed) > 0
}

func (s *PullSummary) String() string {
	var b strings.Builder
	if s.Created {
		fmt.Fprintf(&b, "Recipe %s fetched: %s files, %s\n", s.Recipe, humanize.Comma(int64(len(s.Fetched))), humanize.Bytes(s.Bytes))
	} else if !s.Changed() {
		fmt.Fprintf(&b, "Recipe %s is up to date\n", s.Recipe)
		return b.String()
	}

	if !s.Created {
		writeList(&b, "fetched from remote", s.Recipe, s.Fetched)
	}
	writeList(&b, "merged", s.Recipe, s.Merged)
	writeList(&b, "deleted locally", s.Recipe, s.Deleted)
	writeList(&b, "have merge conflicts, local copy kept", s.Recipe, s.Conflicted)

	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, "%d failed:\n", len(s.Failed))
		failed := append([]FileFailure(nil), s.Failed...)
		sort.Slice(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })
		for _, f := range failed {
			fmt.Fprintf(&b, "\t%s: %v\n", recipe.StripRecipe(s.Recipe, f.Path), f.Err)
		}
	}
	if s.Bytes > 0 && !s.Created {
		fmt.Fprintf(&b, "%s written\n", humanize.Bytes(s.Bytes))
	}
	return b.String()
}

// PushSummary reports a recipe update.
type PushSummary struct {
	Recipe     string
	Unchanged  bool
	Created    []string
	Updated    []string
	Deleted    []string
	NotUpdated []string
	Issues     []dksdk.Issue
}

func (s *PushSummary) String() string {
	var b strings.Builder
	if s.Unchanged {
		fmt.Fprintf(&b, "Recipe %s: no files changed\n", s.Recipe)
		return b.String()
	}

	b.WriteString("Update results:\n\n")
	writeSection(&b, "New files", s.Created)
	writeSection(&b, "Updated files", s.Updated)
	writeSection(&b, "Deleted files", s.Deleted)

	if len(s.Issues) > 0 {
		b.WriteString("\nIssues:\n\n")
		b.WriteString(dksdk.FormatIssues(s.Issues))
		b.WriteString("\n")
	}
	if len(s.NotUpdated) > 0 {
		b.WriteString("\nWarning:\nThe following files could not be updated, please try this command again to complete the update:\n")
		for _, p := range s.NotUpdated {
			fmt.Fprintf(&b, "%s\n", p)
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, title, recipeName string, paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	fmt.Fprintf(b, "%d %s:\n", len(sorted), title)
	for _, p := range sorted {
		fmt.Fprintf(b, "\t%s\n", recipe.StripRecipe(recipeName, p))
	}
}

func writeSection(b *strings.Builder, title string, paths []string) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(paths) == 0 {
		b.WriteString("\tNone\n")
		return
	}
	for _, p := range paths {
		fmt.Fprintf(b, "\t%s\n", p)
	}
}
