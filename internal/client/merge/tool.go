package merge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/kballard/go-shellquote"
)

var (
	ErrEmptyCommand       = errors.New("tool command is empty")
	ErrUnknownPlaceholder = errors.New("unknown placeholder in tool command")
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Tool runs a user configured diff or merge program. Template is a command
// line with {{name}} placeholders, e.g. "meld {{left}} {{merge}} {{right}}".
type Tool struct {
	Template string
	// Run executes argv; nil runs the program attached to the terminal.
	Run func(ctx context.Context, argv []string) error
}

func NewTool(template string) *Tool {
	return &Tool{Template: template}
}

// Command renders the template into argv. Values are quoted before they are
// substituted so paths with spaces stay one argument.
func (t *Tool) Command(values map[string]string) ([]string, error) {
	var missing []string
	rendered := placeholderRe.ReplaceAllStringFunc(t.Template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return shellquote.Join(v)
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Wrapf(ErrUnknownPlaceholder, "%v", missing)
	}

	argv, err := shellquote.Split(rendered)
	if err != nil {
		return nil, errors.Wrapf(err, "parse tool command %q", t.Template)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

// Exec renders and runs the command, returning the argv it ran.
func (t *Tool) Exec(ctx context.Context, values map[string]string) ([]string, error) {
	argv, err := t.Command(values)
	if err != nil {
		return nil, err
	}
	run := t.Run
	if run == nil {
		run = runAttached
	}
	if err := run(ctx, argv); err != nil {
		return argv, errors.Wrapf(err, "run %s", argv[0])
	}
	return argv, nil
}

func runAttached(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// DiffFile copies the remote version of rel into diffDir and runs the diff
// tool with {{local}} and {{remote}}. diffDir is cleared first.
func DiffFile(ctx context.Context, fetcher FileFetcher, tool *Tool, diffDir, kitchenName string, r *kitchen.Recipe, rel string) ([]string, error) {
	rel = utils.ToSlash(rel)
	local := r.AbsPath(rel)
	if !utils.IsWithin(r.Root(), local) {
		return nil, errors.Wrapf(ErrUnsafePath, "%s", rel)
	}

	content, err := fetcher.File(ctx, kitchenName, r.Name, rel)
	if err != nil {
		return nil, errors.Wrapf(err, "get remote %s", rel)
	}

	if err := utils.ClearDir(diffDir); err != nil {
		return nil, errors.Wrap(err, "clear diff dir")
	}
	remote := filepath.Join(diffDir, kitchenName, r.Name, filepath.FromSlash(rel))
	if err := utils.EnsureParent(remote); err != nil {
		return nil, err
	}
	if err := utils.WriteFileAtomic(remote, []byte(content), 0o644); err != nil {
		return nil, errors.Wrapf(err, "write %s", remote)
	}

	return tool.Exec(ctx, map[string]string{
		"local":  local,
		"remote": remote,
	})
}

// MergeFile runs the merge tool against the staged artifacts of file.
func (o *Orchestrator) MergeFile(ctx context.Context, tool *Tool, from, to, file string) ([]string, error) {
	if err := requireKitchens(from, to); err != nil {
		return nil, err
	}
	file = stagedName(file)

	values := make(map[string]string, 4)
	for _, kind := range []string{ArtifactLeft, ArtifactBase, ArtifactRight, ArtifactMerge} {
		p, err := o.ArtifactPath(from, to, file, kind)
		if err != nil {
			return nil, err
		}
		if !utils.FileExists(p) {
			return nil, notStaged(file)
		}
		values[kind] = p
	}
	return tool.Exec(ctx, values)
}
