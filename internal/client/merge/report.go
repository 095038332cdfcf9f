package merge

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/recipe"
)

var (
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resolvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	changedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	plainCell     = lipgloss.NewStyle().PaddingRight(1)
	countCell     = lipgloss.NewStyle().PaddingRight(1).Align(lipgloss.Right)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case dksdk.PreviewStatusConflict:
		return conflictStyle
	case dksdk.PreviewStatusResolved:
		return resolvedStyle
	default:
		return changedStyle
	}
}

func (r *PreviewResult) String() string {
	var sb strings.Builder
	sb.WriteString("Merge Preview Results (only changed files are being displayed):\n")
	sb.WriteString("--------------------------------------------------------------\n\n")
	if len(r.Entries) == 0 {
		sb.WriteString("Nothing to merge.\n")
	}
	for _, e := range r.Entries {
		fmt.Fprintf(&sb, "%s\t\t%s\n", statusStyle(e.Status).Render(fmt.Sprintf("%8s", e.Status)), e.File)
	}
	return sb.String()
}

// Conflicts counts the entries still waiting for a resolution.
func (r *PreviewResult) Conflicts() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == dksdk.PreviewStatusConflict {
			n++
		}
	}
	return n
}

// FormatMergeSuccess renders the per-file change table of a merge and its
// totals. A merge with nothing to do prints the server message.
func FormatMergeSuccess(resp *dksdk.MergeKitchensResponse) string {
	info := resp.Result.MergeInfo
	if info.MergeStatus == dksdk.MergeStatusNoContent {
		return info.Message + "\n"
	}

	var rows [][]string
	for _, name := range sortedKeys(info.Recipes) {
		folders := info.Recipes[name]
		for _, folder := range sortedKeys(folders) {
			for _, f := range folders[folder] {
				rows = append(rows, []string{
					path.Join(folder, f.Filename),
					strconv.Itoa(f.Changes),
					strings.Repeat("+", f.Additions) + strings.Repeat("-", f.Deletions),
				})
			}
		}
	}

	var sb strings.Builder
	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderColumn(false).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 1 {
					return countCell
				}
				return plainCell
			}).
			Rows(rows...)
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d files changed, %d insertions(+), %d deletions(-)\n", len(rows), info.Stats.Additions, info.Stats.Deletions)
	return sb.String()
}

// FormatMergeConflicts lists the conflicted files reported by a merge.
func FormatMergeConflicts(resp *dksdk.MergeKitchensResponse) string {
	conflicts := resp.Result.MergeInfo.Conflicts

	var body strings.Builder
	count := 0
	for _, name := range sortedKeys(conflicts) {
		fmt.Fprintf(&body, "\tConflicted files in recipe '%s'\n", name)
		for _, folder := range sortedKeys(conflicts[name]) {
			for _, c := range conflicts[name][folder] {
				fmt.Fprintf(&body, "\t\t%s\n", path.Join(folder, c.Filename))
				count++
			}
		}
	}

	noun := "conflicts"
	if count == 1 {
		noun = "conflict"
	}
	return fmt.Sprintf("%d %s found\n", count, noun) + body.String()
}

// FormatUnresolved lists unresolved conflict records keyed by recipe.
func FormatUnresolved(docs map[string]recipe.ConflictDocument) string {
	var sb strings.Builder
	for _, name := range sortedKeys(docs) {
		fmt.Fprintf(&sb, "\tUnresolved conflicts for recipe '%s'\n", name)
		for _, rec := range docs[name].Records() {
			fmt.Fprintf(&sb, "\t\t%s\n", path.Join(rec.FolderInRecipe, rec.Filename))
		}
	}
	return sb.String()
}
