package recipe

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStore_RoundTrip(t *testing.T) {
	r := newTestRecipe(t, "simple", nil)
	store := NewHashStore(r, nil)

	tree := TreeState{
		"simple":                    files("description.json", sha("d")),
		"simple/node1":              files("a.json", sha("a"), "b:c.txt", sha("b")),
		"simple/node1/data_sources": {},
	}
	require.NoError(t, store.Save(tree))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "simple/node1/a.json:"+sha("a"))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tree.Paths(), loaded.Paths())
}

func TestHashStore_Absent(t *testing.T) {
	r := newTestRecipe(t, "simple", nil)

	tree, ok, err := NewHashStore(r, nil).Load()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tree)

	// no meta dir at all
	orphan := r.Kitchen.Recipe("orphan")
	_, ok, err = NewHashStore(orphan, nil).Load()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestHashStore_Malformed(t *testing.T) {
	r := newTestRecipe(t, "simple", nil)
	store := NewHashStore(r, nil)
	writeFile(t, store.Path(), "simple/a.json:abc\nnot a line\n")

	_, ok, err := store.Load()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedLocalState)
}

func TestHashStore_Incremental(t *testing.T) {
	r := newTestRecipe(t, "simple", map[string]string{
		"a.json":       "a",
		"node1/b.json": "b",
	})
	store := NewHashStore(r, nil)
	tree, err := NewWalker(r.Root()).Walk(r.Root())
	require.NoError(t, err)
	require.NoError(t, store.Save(tree))

	writeFile(t, r.AbsPath("node1/c.json"), "c")
	require.NoError(t, store.RecordFileAdded("node1/c.json"))

	writeFile(t, r.AbsPath("a.json"), "a2")
	require.NoError(t, store.RecordFileUpdated("a.json"))

	require.NoError(t, store.RecordFileDeleted("node1/b.json"))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"simple/a.json":       sha("a2"),
		"simple/node1/c.json": sha("c"),
	}, loaded.Paths())

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, store.RecordFileUpdated("nope.json"))
	})
}

func TestHashStore_Changes(t *testing.T) {
	r := newTestRecipe(t, "simple", nil)
	store := NewHashStore(r, nil)

	cs, err := store.Changes(TreeState{"simple": files("a.json", "1")})
	require.NoError(t, err)
	assert.True(t, cs.New.Contains("simple/a.json"))

	require.NoError(t, store.Save(TreeState{"simple": files("a.json", "1", "b.json", "2", "c.json", "3")}))
	cs, err = store.Changes(TreeState{"simple": files("a.json", "1", "b.json", "9", "d.json", "4")})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"simple/d.json"}, cs.New.ToSlice())
	assert.ElementsMatch(t, []string{"simple/b.json"}, cs.Changed.ToSlice())
	assert.ElementsMatch(t, []string{"simple/c.json"}, cs.Removed.ToSlice())
	assert.False(t, cs.Empty())
}
