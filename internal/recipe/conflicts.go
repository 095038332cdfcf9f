package recipe

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/goccy/go-json"
)

const conflictsMetaName = "conflicts.json"

type ConflictStatus string

const (
	ConflictUnresolved ConflictStatus = "unresolved"
	ConflictResolved   ConflictStatus = "resolved"
)

// ConflictRecord is one file that an automatic merge could not reconcile.
// FolderInRecipe includes the recipe name, e.g. "simple/node1".
type ConflictRecord struct {
	FromKitchen    string         `json:"from_kitchen"`
	ToKitchen      string         `json:"to_kitchen"`
	RecipeName     string         `json:"-"`
	FolderInRecipe string         `json:"folder_in_recipe"`
	Filename       string         `json:"filename"`
	SHA            string         `json:"sha"`
	ConflictTags   string         `json:"conflict_tags"`
	Status         ConflictStatus `json:"status"`
}

// Key is the composite identity "from|to|recipe|folder|filename".
func (c *ConflictRecord) Key() string {
	return strings.Join([]string{c.FromKitchen, c.ToKitchen, c.RecipeName, c.FolderInRecipe, c.Filename}, "|")
}

// PathInRecipe is the file path relative to the recipe root.
func (c *ConflictRecord) PathInRecipe() string {
	return StripRecipe(c.RecipeName, path.Join(c.FolderInRecipe, c.Filename))
}

// ConflictDocument is the on-disk shape: folder -> key -> record.
type ConflictDocument map[string]map[string]*ConflictRecord

// Records flattens the document sorted by key.
func (d ConflictDocument) Records() []*ConflictRecord {
	var out []*ConflictRecord
	for _, folder := range d {
		for _, rec := range folder {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (d ConflictDocument) Len() int {
	n := 0
	for _, folder := range d {
		n += len(folder)
	}
	return n
}

// ConflictStore persists the conflicts of one recipe in
// `.dk/recipes/<recipe>/conflicts.json`. Records are never removed; adding a
// record with an existing key replaces it.
type ConflictStore struct {
	recipe *kitchen.Recipe
}

func NewConflictStore(r *kitchen.Recipe) *ConflictStore {
	return &ConflictStore{recipe: r}
}

func (s *ConflictStore) Path() string {
	return s.recipe.MetaPath(conflictsMetaName)
}

// Add stores rec as unresolved.
func (s *ConflictStore) Add(rec ConflictRecord) error {
	rec.RecipeName = s.recipe.Name
	rec.Status = ConflictUnresolved

	doc := s.loadOrEmpty()
	if doc[rec.FolderInRecipe] == nil {
		doc[rec.FolderInRecipe] = make(map[string]*ConflictRecord)
	}
	doc[rec.FolderInRecipe][rec.Key()] = &rec

	slog.Debug("conflict recorded", "recipe", s.recipe.Name, "folder", rec.FolderInRecipe, "file", rec.Filename)
	return s.save(doc)
}

// ListUnresolved returns unresolved records, filtered by kitchen when from or
// to is not empty.
func (s *ConflictStore) ListUnresolved(from, to string) (ConflictDocument, error) {
	return s.list(ConflictUnresolved, from, to)
}

// ListResolved returns resolved records, filtered like ListUnresolved.
func (s *ConflictStore) ListResolved(from, to string) (ConflictDocument, error) {
	return s.list(ConflictResolved, from, to)
}

// MarkResolved flips the first unresolved record whose file matches filePath.
// filePath may be absolute, cwd relative, or relative to the recipe root when
// it does not exist from the cwd. ErrConflictNotFound when nothing matches.
func (s *ConflictStore) MarkResolved(filePath string) error {
	rel, err := s.relPath(filePath)
	if err != nil {
		return err
	}

	doc, err := s.Load()
	if err != nil {
		return err
	}

	for _, rec := range doc.Records() {
		if rec.Status == ConflictUnresolved && rec.PathInRecipe() == rel {
			rec.Status = ConflictResolved
			return s.save(doc)
		}
	}
	return errors.Wrapf(ErrConflictNotFound, "%s in recipe %s", rel, s.recipe.Name)
}

// Load reads the document. A missing file is an empty document; an
// unreadable one returns ErrMalformedLocalState.
func (s *ConflictStore) Load() (ConflictDocument, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return make(ConflictDocument), nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.Path())
	}

	doc := make(ConflictDocument)
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse %s", s.Path()), ErrMalformedLocalState)
	}
	for folder, recs := range doc {
		for key, rec := range recs {
			if rec == nil {
				delete(recs, key)
				continue
			}
			rec.RecipeName = s.recipe.Name
			if rec.FolderInRecipe == "" {
				rec.FolderInRecipe = folder
			}
		}
	}
	return doc, nil
}

func (s *ConflictStore) loadOrEmpty() ConflictDocument {
	doc, err := s.Load()
	if err != nil {
		slog.Warn("ignoring unreadable conflicts file", "path", s.Path(), "error", err)
		return make(ConflictDocument)
	}
	return doc
}

func (s *ConflictStore) list(status ConflictStatus, from, to string) (ConflictDocument, error) {
	doc, err := s.Load()
	if errors.Is(err, ErrMalformedLocalState) {
		slog.Warn("ignoring unreadable conflicts file", "path", s.Path(), "error", err)
		return make(ConflictDocument), nil
	} else if err != nil {
		return nil, err
	}

	out := make(ConflictDocument)
	for folder, recs := range doc {
		for key, rec := range recs {
			if rec.Status != status {
				continue
			}
			if (from != "" && rec.FromKitchen != from) || (to != "" && rec.ToKitchen != to) {
				continue
			}
			if out[folder] == nil {
				out[folder] = make(map[string]*ConflictRecord)
			}
			out[folder][key] = rec
		}
	}
	return out, nil
}

func (s *ConflictStore) relPath(filePath string) (string, error) {
	if filePath == "" {
		return "", utils.ErrEmptyPath
	}
	candidate := filePath
	if !utils.FileExists(candidate) && !filepath.IsAbs(filePath) {
		candidate = s.recipe.AbsPath(filePath)
	}
	rel, err := s.recipe.RelPath(candidate)
	if err != nil {
		return "", errors.Wrap(err, "resolve conflict")
	}
	return rel, nil
}

func (s *ConflictStore) save(doc ConflictDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode conflicts")
	}
	if err := utils.EnsureDir(s.recipe.MetaDir()); err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.Path(), data, 0o644)
}
