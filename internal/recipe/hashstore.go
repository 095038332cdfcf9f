package recipe

import (
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/utils"
	mapset "github.com/deckarep/golang-set/v2"
)

const fileSHAName = "FILE_SHA"

// HashStore persists the last synced path -> hash snapshot of one recipe in
// `.dk/recipes/<recipe>/FILE_SHA`, one `recipe/rel/path:sha` line per file.
type HashStore struct {
	recipe *kitchen.Recipe
	hasher ContentHasher
}

func NewHashStore(r *kitchen.Recipe, hasher ContentHasher) *HashStore {
	if hasher == nil {
		hasher = DefaultHasher
	}
	return &HashStore{recipe: r, hasher: hasher}
}

func (s *HashStore) Path() string {
	return s.recipe.MetaPath(fileSHAName)
}

// Save overwrites the snapshot with every file in tree.
func (s *HashStore) Save(tree TreeState) error {
	return s.write(tree.Paths())
}

// Load returns the snapshot. ok is false when there is no snapshot yet or the
// recipe meta directory is missing. A snapshot that cannot be parsed is
// reported as ErrMalformedLocalState with ok false, so callers can warn and
// continue without a baseline.
func (s *HashStore) Load() (tree TreeState, ok bool, err error) {
	paths, ok, err := s.read()
	if !ok || err != nil {
		return nil, false, err
	}
	return TreeFromPaths(paths), true, nil
}

// RecordFileAdded hashes the file at rel (relative to the recipe root) and adds it.
func (s *HashStore) RecordFileAdded(rel string) error {
	return s.record(rel)
}

// RecordFileUpdated rehashes the current on-disk content of rel.
func (s *HashStore) RecordFileUpdated(rel string) error {
	return s.record(rel)
}

// RecordFileDeleted drops the line for rel.
func (s *HashStore) RecordFileDeleted(rel string) error {
	paths, _, err := s.read()
	if err != nil {
		slog.Warn("discarding malformed snapshot", "recipe", s.recipe.Name, "error", err)
	}
	if paths == nil {
		return nil
	}
	delete(paths, s.key(rel))
	return s.write(paths)
}

// ChangeSet holds the full paths (recipe prefixed) that differ between the
// snapshot and a walk of the working copy.
type ChangeSet struct {
	New     mapset.Set[string]
	Changed mapset.Set[string]
	Removed mapset.Set[string]
}

func (c ChangeSet) Empty() bool {
	return c.New.Cardinality() == 0 && c.Changed.Cardinality() == 0 && c.Removed.Cardinality() == 0
}

// Changes compares current against the snapshot. Without a snapshot every
// current file counts as new.
func (s *HashStore) Changes(current TreeState) (ChangeSet, error) {
	baseline, _, err := s.read()
	if err != nil && !errors.Is(err, ErrMalformedLocalState) {
		return ChangeSet{}, err
	}
	return diffPaths(baseline, current.Paths()), nil
}

func diffPaths(baseline, current map[string]string) ChangeSet {
	cs := ChangeSet{
		New:     mapset.NewSet[string](),
		Changed: mapset.NewSet[string](),
		Removed: mapset.NewSet[string](),
	}
	for p, sha := range current {
		old, ok := baseline[p]
		switch {
		case !ok:
			cs.New.Add(p)
		case old != sha:
			cs.Changed.Add(p)
		}
	}
	for p := range baseline {
		if _, ok := current[p]; !ok {
			cs.Removed.Add(p)
		}
	}
	return cs
}

func (s *HashStore) record(rel string) error {
	sha, err := HashFile(s.hasher, s.recipe.AbsPath(rel))
	if err != nil {
		return errors.Wrapf(err, "hash %s", rel)
	}

	paths, _, err := s.read()
	if err != nil {
		slog.Warn("discarding malformed snapshot", "recipe", s.recipe.Name, "error", err)
	}
	if paths == nil {
		paths = make(map[string]string)
	}
	paths[s.key(rel)] = sha
	return s.write(paths)
}

func (s *HashStore) key(rel string) string {
	return path.Join(s.recipe.Name, utils.ToSlash(rel))
}

func (s *HashStore) read() (map[string]string, bool, error) {
	if !utils.DirExists(s.recipe.MetaDir()) {
		return nil, false, nil
	}

	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "read %s", s.Path())
	}

	paths := make(map[string]string)
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx <= 0 || idx == len(line)-1 {
			return nil, false, errors.Wrapf(ErrMalformedLocalState, "%s line %d", fileSHAName, n+1)
		}
		paths[line[:idx]] = line[idx+1:]
	}
	return paths, true, nil
}

func (s *HashStore) write(paths map[string]string) error {
	lines := make([]string, 0, len(paths))
	for p, sha := range paths {
		lines = append(lines, p+":"+sha)
	}
	sort.Strings(lines)

	if err := utils.EnsureDir(s.recipe.MetaDir()); err != nil {
		return errors.Wrap(err, "create recipe meta dir")
	}
	return utils.WriteFileAtomic(s.Path(), []byte(strings.Join(lines, "\n")), 0o644)
}
