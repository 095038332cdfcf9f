package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	r := newTestRecipe(t, "simple", map[string]string{
		"description.json":               `{"name":"simple"}`,
		"node1/description.json":         `{"type":"DKNode_DataMapper"}`,
		"node1/data_sources/source.json": `{}`,
		"node1/.DS_Store":                "junk",
		"compiled-recipe/out.json":       "built",
		"scratch/tmp.sql":                "select 1",
		IgnoreFileName:                   "scratch/\n# comment\n",
	})
	require.NoError(t, os.MkdirAll(r.AbsPath("empty"), 0o755))

	tree, err := NewWalker(r.Root()).Walk(r.Root())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"simple",
		"simple/node1",
		"simple/node1/data_sources",
		"simple/empty",
	}, tree.Folders())

	assert.Empty(t, tree["simple/empty"])
	assert.Equal(t, map[string]string{
		"simple/description.json":               sha(`{"name":"simple"}`),
		"simple/node1/description.json":         sha(`{"type":"DKNode_DataMapper"}`),
		"simple/node1/data_sources/source.json": sha(`{}`),
	}, tree.Paths())
}

func TestWalk_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := (&Walker{}).Walk(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "file")
	writeFile(t, file, "x")
	_, err = (&Walker{}).Walk(file)
	assert.Error(t, err)
}

func TestWalk_UnreadableFileFailsWholeWalk(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	r := newTestRecipe(t, "simple", map[string]string{"a.json": "{}"})
	require.NoError(t, os.Chmod(r.AbsPath("a.json"), 0o000))
	t.Cleanup(func() { os.Chmod(r.AbsPath("a.json"), 0o644) })

	tree, err := NewWalker(r.Root()).Walk(r.Root())
	assert.Error(t, err)
	assert.Nil(t, tree)
}
