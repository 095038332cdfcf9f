package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/config"
	"github.com/datakitchen/dkcli/internal/client/merge"
	"github.com/datakitchen/dkcli/internal/client/sync"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/spf13/cobra"
)

// session bundles what a server bound command needs. kitchen is nil when
// the command runs outside a kitchen and needKitchen was false.
type session struct {
	cfg     *config.Config
	sdk     *dksdk.DKSDK
	kitchen *kitchen.Kitchen
	cwd     string
}

func newSession(cmd *cobra.Command, needKitchen bool) (*session, error) {
	cfg, err := readValidConfig(cmd, true)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	k, err := kitchen.Find(cwd)
	if err != nil {
		if needKitchen || !errors.Is(err, kitchen.ErrNotARecipeOrKitchen) {
			return nil, errors.WithHint(err, "run dk inside a kitchen directory, or create one with 'dk kitchen-get'")
		}
		k = nil
	}

	sdk, err := newSDK(cmd, cfg)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, sdk: sdk, kitchen: k, cwd: cwd}, nil
}

func (s *session) Close() {
	s.sdk.Close()
}

func (s *session) syncer() *sync.Syncer {
	return sync.NewSyncer(s.kitchen, s.sdk.Recipe)
}

func (s *session) orchestrator() *merge.Orchestrator {
	return merge.NewOrchestrator(s.sdk.Kitchen, s.cfg.MergeDir, s.kitchen)
}

// recipe returns the named recipe, or the one containing the working
// directory when name is empty.
func (s *session) recipe(name string) (*kitchen.Recipe, error) {
	if name != "" {
		return s.kitchen.Recipe(name), nil
	}
	r, err := s.kitchen.RecipeFor(s.cwd)
	if err != nil {
		return nil, errors.WithHint(err, "run the command inside a recipe directory or pass the recipe name")
	}
	return r, nil
}

// recipeRel turns command line paths into paths relative to the recipe.
func (s *session) recipeRel(r *kitchen.Recipe, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cwd, p)
		}
		rel, err := r.RelPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// kitchenPair resolves the source kitchen from the flag or the current
// kitchen. Both set and different is an error.
func (s *session) kitchenPair(source, target string) (string, string, error) {
	current := ""
	if s.kitchen != nil {
		current = s.kitchen.Name
	}
	switch {
	case source == "" && current == "":
		return "", "", errors.New("not in a kitchen and no --source-kitchen given")
	case source != "" && current != "" && source != current:
		return "", "", errors.Newf("current kitchen %s differs from --source-kitchen %s", current, source)
	case source == "":
		source = current
	}
	if target == "" {
		return "", "", errors.New("--target-kitchen is required")
	}
	return source, target, nil
}

// confirm asks until the answer is yes or no. An empty answer or EOF is no.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [yes/No] ", prompt)
		line, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "yes", "y":
			return true
		case "no", "n", "":
			return false
		}
		if err != nil {
			return false
		}
		fmt.Fprintln(out, "Please answer yes or no.")
	}
}
