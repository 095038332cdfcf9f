package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/stretchr/testify/require"
)

// newTestRecipe creates a kitchen "dev" holding recipe name with files
// written from rel path -> content.
func newTestRecipe(t *testing.T, name string, files map[string]string) *kitchen.Recipe {
	t.Helper()
	k, err := kitchen.Create(t.TempDir(), "dev")
	require.NoError(t, err)

	r := k.Recipe(name)
	require.NoError(t, os.MkdirAll(r.Root(), 0o755))
	require.NoError(t, r.WriteMeta("head-1"))
	for rel, content := range files {
		writeFile(t, r.AbsPath(rel), content)
	}
	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sha(s string) string {
	return GitBlobHasher{}.Hash([]byte(s))
}
