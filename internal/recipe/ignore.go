package recipe

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the optional per-recipe file holding extra ignore patterns.
const IgnoreFileName = ".dkignore"

var defaultIgnoreLines = []string{
	// dk
	kitchen.MetaDirName,
	"compiled-recipe/",
	"*.dk.tmp.*",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which recipe paths take no part in reconciliation.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus any rules from the recipe's ignore file.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := append([]string{IgnoreFileName}, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether the slash path relative to the recipe root is excluded.
func (s *IgnoreList) ShouldIgnore(rel string) bool {
	if s.ignore == nil {
		s.Load()
	}
	rel = utils.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	return s.ignore.MatchesPath(rel)
}

// ShouldIgnoreDir is ShouldIgnore for a directory, so that patterns with a
// trailing slash match it as well.
func (s *IgnoreList) ShouldIgnoreDir(rel string) bool {
	return s.ShouldIgnore(rel) || s.ShouldIgnore(utils.ToSlash(rel)+"/")
}
