package recipe

import (
	"path"
	"sort"
	"strings"
)

// FileRecord is one file's content state: its base name and content hash.
type FileRecord struct {
	Filename string `json:"filename"`
	SHA      string `json:"sha"`
}

// TreeState maps a folder key (slash path including the recipe name, e.g.
// "simple/node1") to the files directly inside it. An entry with no files
// represents an empty directory.
type TreeState map[string][]FileRecord

// Add records a file under folder, replacing an existing record with the same name.
func (t TreeState) Add(folder string, rec FileRecord) {
	files := t[folder]
	for i := range files {
		if files[i].Filename == rec.Filename {
			files[i] = rec
			return
		}
	}
	t[folder] = append(files, rec)
}

// EnsureFolder makes folder present, possibly with no files.
func (t TreeState) EnsureFolder(folder string) {
	if _, ok := t[folder]; !ok {
		t[folder] = []FileRecord{}
	}
}

// Lookup returns the record for filename inside folder.
func (t TreeState) Lookup(folder, filename string) (FileRecord, bool) {
	for _, f := range t[folder] {
		if f.Filename == filename {
			return f, true
		}
	}
	return FileRecord{}, false
}

// Paths flattens the tree into full path -> hash. Folder-only entries are dropped.
func (t TreeState) Paths() map[string]string {
	out := make(map[string]string)
	for folder, files := range t {
		for _, f := range files {
			out[path.Join(folder, f.Filename)] = f.SHA
		}
	}
	return out
}

// FileCount is the number of file records across all folders.
func (t TreeState) FileCount() int {
	n := 0
	for _, files := range t {
		n += len(files)
	}
	return n
}

// Folders returns the folder keys sorted.
func (t TreeState) Folders() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TreeFromPaths rebuilds a TreeState from full path -> hash pairs.
func TreeFromPaths(paths map[string]string) TreeState {
	t := make(TreeState)
	for p, sha := range paths {
		t.Add(path.Dir(p), FileRecord{Filename: path.Base(p), SHA: sha})
	}
	return t
}

// StripRecipe removes the leading "<recipe>/" from a folder key or path.
func StripRecipe(recipeName, p string) string {
	if p == recipeName {
		return ""
	}
	return strings.TrimPrefix(p, recipeName+"/")
}
