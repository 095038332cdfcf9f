package kitchen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKitchen(t *testing.T, recipes ...string) *Kitchen {
	t.Helper()
	k, err := Create(t.TempDir(), "dev")
	require.NoError(t, err)
	for _, name := range recipes {
		r := k.Recipe(name)
		require.NoError(t, os.MkdirAll(r.Root(), 0o755))
		require.NoError(t, r.WriteMeta("head-"+name))
	}
	return k
}

func TestCreate(t *testing.T) {
	parent := t.TempDir()

	k, err := Create(parent, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", k.Name)
	assert.Equal(t, filepath.Join(parent, "dev"), k.Root)
	assert.DirExists(t, k.RecipesMetaDir())
	assert.True(t, IsRoot(k.Root))

	t.Run("rejects non-empty dir", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(parent, "dev", "stray.txt"), []byte("x"), 0o644))
		_, err := Create(parent, "dev")
		assert.ErrorIs(t, err, ErrKitchenDirNotEmpty)
	})

	t.Run("rejects bad names", func(t *testing.T) {
		_, err := Create(parent, "a/b")
		assert.Error(t, err)
		_, err = Create(parent, "")
		assert.Error(t, err)
	})
}

func TestFind(t *testing.T) {
	k := newTestKitchen(t, "simple")
	deep := filepath.Join(k.Root, "simple", "node1", "data_sources")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	found, err := Find(deep)
	require.NoError(t, err)
	assert.Equal(t, k.Root, found.Root)
	assert.Equal(t, "dev", found.Name)

	_, err = Find(t.TempDir())
	assert.ErrorIs(t, err, ErrNotARecipeOrKitchen)
}

func TestFind_EmptyKitchenMetaIsNotAKitchen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, MetaDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaDirName, kitchenMetaFile), nil, 0o644))

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrNotARecipeOrKitchen)
}

func TestRecipeFor(t *testing.T) {
	k := newTestKitchen(t, "simple")
	require.NoError(t, os.MkdirAll(filepath.Join(k.Root, "simple", "node1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(k.Root, "loose"), 0o755))

	r, err := k.RecipeFor(filepath.Join(k.Root, "simple", "node1"))
	require.NoError(t, err)
	assert.Equal(t, "simple", r.Name)
	assert.True(t, r.Exists())

	cases := []string{
		k.Root,
		filepath.Join(k.Root, MetaDirName),
		filepath.Join(k.Root, "loose"),
		t.TempDir(),
	}
	for _, dir := range cases {
		_, err := k.RecipeFor(dir)
		assert.ErrorIs(t, err, ErrNotARecipeOrKitchen, dir)
	}
}

func TestRecipes(t *testing.T) {
	k := newTestKitchen(t, "zeta", "alpha")
	// meta dir without a matching marker is ignored
	require.NoError(t, os.MkdirAll(k.RecipeMetaDir("ghost"), 0o755))

	names, err := k.Recipes()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestRecipeMetaAndPaths(t *testing.T) {
	k := newTestKitchen(t, "simple")
	r := k.Recipe("simple")

	head, err := r.OrigHead()
	require.NoError(t, err)
	assert.Equal(t, "head-simple", head)

	require.NoError(t, r.SetOrigHead("abc123"))
	head, err = r.OrigHead()
	require.NoError(t, err)
	assert.Equal(t, "abc123", head)

	_, err = k.Recipe("other").OrigHead()
	assert.ErrorIs(t, err, ErrNoOrigHead)

	rel, err := r.RelPath(filepath.Join(r.Root(), "node1", "description.json"))
	require.NoError(t, err)
	assert.Equal(t, "node1/description.json", rel)
	assert.Equal(t, filepath.Join(r.Root(), "node1", "description.json"), r.AbsPath(rel))

	_, err = r.RelPath(k.Root)
	assert.Error(t, err)
}

func TestLock(t *testing.T) {
	k := newTestKitchen(t)
	require.NoError(t, k.Lock())

	other, err := Open(k.Root)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Lock(), ErrKitchenLocked)

	require.NoError(t, k.Unlock())
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
	assert.NoError(t, k.Unlock(), "unlock without holding the lock is a no-op")
}
