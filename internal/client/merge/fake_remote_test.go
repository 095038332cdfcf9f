package merge

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/stretchr/testify/require"
)

type fakeKitchens struct {
	mu sync.Mutex

	preview    []dksdk.MergePreviewItem
	mergeResp  *dksdk.MergeKitchensResponse
	manualResp *dksdk.MergeKitchensResponse

	calls    map[string]int
	resolved dksdk.ResolvedConflicts
	files    map[string]string
}

func newFakeKitchens() *fakeKitchens {
	ok := &dksdk.MergeKitchensResponse{Result: dksdk.MergeKitchenResult{Status: "success"}}
	return &fakeKitchens{
		mergeResp:  ok,
		manualResp: ok,
		calls:      make(map[string]int),
	}
}

func (f *fakeKitchens) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeKitchens) MergePreview(ctx context.Context, from, to string) ([]dksdk.MergePreviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["preview"]++
	return f.preview, nil
}

func (f *fakeKitchens) Merge(ctx context.Context, from, to string, resolved dksdk.ResolvedConflicts) (*dksdk.MergeKitchensResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["merge"]++
	f.resolved = resolved
	return f.mergeResp, nil
}

func (f *fakeKitchens) ManualMerge(ctx context.Context, from, to string, files map[string]string) (*dksdk.MergeKitchensResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["manual"]++
	f.files = files
	return f.manualResp, nil
}

var _ Remote = (*fakeKitchens)(nil)

type fakeFiles map[string]string

func (f fakeFiles) File(ctx context.Context, kitchenName, recipeName, filePath string) (string, error) {
	c, ok := f[kitchenName+"/"+recipeName+"/"+filePath]
	if !ok {
		return "", dksdk.NewAPIError(404, "", "not found")
	}
	return c, nil
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func conflictItem(file, base, left, right, merged string) dksdk.MergePreviewItem {
	return dksdk.MergePreviewItem{
		File:   file,
		Status: dksdk.PreviewStatusConflict,
		Base:   b64(base),
		Left:   b64(left),
		Right:  b64(right),
		Merge:  b64(merged),
	}
}

// newLocalKitchen creates kitchen "dev" holding the given recipes.
func newLocalKitchen(t *testing.T, recipes ...string) *kitchen.Kitchen {
	t.Helper()
	k, err := kitchen.Create(t.TempDir(), "dev")
	require.NoError(t, err)
	for _, name := range recipes {
		r := k.Recipe(name)
		require.NoError(t, os.MkdirAll(r.Root(), 0o755))
		require.NoError(t, r.WriteMeta("head-1"))
	}
	return k
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
