package sync

import (
	"context"
	"encoding/base64"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory kitchen holding recipes as rel path -> content.
type fakeRemote struct {
	mu      sync.Mutex
	kitchen string
	head    string
	recipes map[string]map[string]string
	dirs    map[string][]string

	// merge overrides the default merge result, which is the remote content.
	merge func(rel string, local []byte, remote string) *dksdk.MergeFileResponse
	// issues are returned by UpdateFiles.
	issues []dksdk.Issue
	// rejected files are reported as not updated by UpdateFiles.
	rejected map[string]bool

	calls       map[string]int
	getRequests [][]string
	updates     []map[string]dksdk.FileChange
	// mergeSHAs holds the lastFileSHA sent per merged file.
	mergeSHAs map[string]string
	// mergeHeads holds the origHead sent per merged file.
	mergeHeads map[string]string
}

func newFakeRemote(kitchenName string) *fakeRemote {
	return &fakeRemote{
		kitchen: kitchenName,
		head:    "head-1",
		recipes: make(map[string]map[string]string),
		dirs:    make(map[string][]string),
		calls:   make(map[string]int),

		mergeSHAs:  make(map[string]string),
		mergeHeads: make(map[string]string),
	}
}

func (f *fakeRemote) put(recipeName, rel, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recipes[recipeName] == nil {
		f.recipes[recipeName] = make(map[string]string)
	}
	f.recipes[recipeName][rel] = content
}

func (f *fakeRemote) remove(recipeName, rel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recipes[recipeName], rel)
}

func (f *fakeRemote) content(recipeName, rel string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.recipes[recipeName][rel]
	return c, ok
}

func (f *fakeRemote) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func folderOf(recipeName, rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return recipeName
	}
	return recipeName + "/" + dir
}

func (f *fakeRemote) Tree(ctx context.Context, kitchenName, recipeName string) (*dksdk.RecipeTreeResponse, error) {
	f.count("tree")
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &dksdk.RecipeTreeResponse{OrigHead: f.head, Recipes: map[string]dksdk.RecipeTree{}}
	files, ok := f.recipes[recipeName]
	if !ok || kitchenName != f.kitchen {
		return resp, nil
	}

	tree := dksdk.RecipeTree{recipeName: {}}
	addFolder := func(folder string) {
		for folder != recipeName && folder != "." {
			if _, ok := tree[folder]; !ok {
				tree[folder] = []dksdk.FileRecord{}
			}
			folder = path.Dir(folder)
		}
	}
	for _, dir := range f.dirs[recipeName] {
		addFolder(recipeName + "/" + dir)
	}
	for rel, content := range files {
		folder := folderOf(recipeName, rel)
		addFolder(folder)
		tree[folder] = append(tree[folder], dksdk.FileRecord{
			Filename: path.Base(rel),
			SHA:      recipe.DefaultHasher.Hash([]byte(content)),
		})
	}
	resp.Recipes[recipeName] = tree
	return resp, nil
}

func (f *fakeRemote) Get(ctx context.Context, kitchenName, recipeName string, want []string) (*dksdk.GetRecipeResponse, error) {
	f.count("get")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRequests = append(f.getRequests, want)

	resp := &dksdk.GetRecipeResponse{OrigHead: f.head, Recipes: map[string]dksdk.RemoteRecipe{}}
	files, ok := f.recipes[recipeName]
	if !ok || kitchenName != f.kitchen {
		return resp, nil
	}

	matches := func(rel string) bool {
		if len(want) == 0 {
			return true
		}
		for _, w := range want {
			if prefix, isWildcard := strings.CutSuffix(w, "*"); isWildcard && strings.HasPrefix(rel, prefix) {
				return true
			}
			if w == rel {
				return true
			}
		}
		return false
	}

	out := dksdk.RemoteRecipe{}
	if len(want) == 0 {
		out[recipeName] = []dksdk.RemoteFile{}
		for _, dir := range f.dirs[recipeName] {
			out[recipeName+"/"+dir] = []dksdk.RemoteFile{}
		}
	}
	for rel, content := range files {
		if !matches(rel) {
			continue
		}
		text := content
		folder := folderOf(recipeName, rel)
		out[folder] = append(out[folder], dksdk.RemoteFile{Filename: path.Base(rel), Text: &text})
	}
	resp.Recipes[recipeName] = out
	return resp, nil
}

func (f *fakeRemote) File(ctx context.Context, kitchenName, recipeName, filePath string) (string, error) {
	f.count("file")
	c, ok := f.content(recipeName, filePath)
	if !ok {
		return "", dksdk.NewAPIError(404, "", "not found")
	}
	return c, nil
}

func (f *fakeRemote) MergeFile(ctx context.Context, kitchenName, recipeName, filePath string, local []byte, origHead, lastFileSHA string) (*dksdk.MergeFileResponse, error) {
	f.count("merge")
	f.mu.Lock()
	f.mergeSHAs[filePath] = lastFileSHA
	f.mergeHeads[filePath] = origHead
	f.mu.Unlock()
	remote, _ := f.content(recipeName, filePath)
	if f.merge != nil {
		return f.merge(filePath, local, remote), nil
	}
	return mergeResult(remote), nil
}

func mergeResult(content string) *dksdk.MergeFileResponse {
	return &dksdk.MergeFileResponse{
		Status:        "success",
		MergedContent: base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

func (f *fakeRemote) UpdateFiles(ctx context.Context, kitchenName, recipeName, message string, files map[string]dksdk.FileChange) (*dksdk.UpdateFilesResponse, error) {
	f.count("update")
	f.mu.Lock()
	f.updates = append(f.updates, files)
	issues := f.issues
	rejected := f.rejected
	f.mu.Unlock()

	resp := &dksdk.UpdateFilesResponse{Status: "success", Issues: issues, Files: map[string]bool{}}
	for _, i := range issues {
		if i.Severity == dksdk.SeverityError {
			return resp, nil
		}
	}
	for rel, change := range files {
		if rejected[rel] {
			resp.Files[rel] = false
			continue
		}
		if change.IsDelete() {
			f.remove(recipeName, rel)
		} else {
			f.put(recipeName, rel, *change.Contents)
		}
		resp.Files[rel] = true
	}
	return resp, nil
}

func (f *fakeRemote) UpdateFile(ctx context.Context, kitchenName, recipeName, message, filePath, contents string) error {
	f.count("update-file")
	f.put(recipeName, filePath, contents)
	return nil
}

func (f *fakeRemote) AddFile(ctx context.Context, kitchenName, recipeName, message, filePath, contents string) error {
	f.count("add-file")
	f.put(recipeName, filePath, contents)
	return nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, kitchenName, recipeName, message, filePath string) error {
	f.count("delete-file")
	f.remove(recipeName, filePath)
	return nil
}

var _ Remote = (*fakeRemote)(nil)

// newTestSyncer returns a syncer over an empty local kitchen "dev" and a
// remote holding recipe "simple" with the given files.
func newTestSyncer(t *testing.T, files map[string]string) (*Syncer, *fakeRemote) {
	t.Helper()
	k, err := kitchen.Create(t.TempDir(), "dev")
	require.NoError(t, err)

	remote := newFakeRemote("dev")
	for rel, content := range files {
		remote.put("simple", rel, content)
	}

	s := NewSyncer(k, remote)
	s.SetFetchConcurrency(1)
	return s, remote
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
