package recipe

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func files(recs ...string) []FileRecord {
	out := make([]FileRecord, 0, len(recs)/2)
	for i := 0; i+1 < len(recs); i += 2 {
		out = append(out, FileRecord{Filename: recs[i], SHA: recs[i+1]})
	}
	return out
}

func TestReconcile_OnlyLocalFile(t *testing.T) {
	remote := TreeState{"simple": files("a.json", "h1")}
	local := TreeState{"simple": files("a.json", "h1", "b.json", "h2")}

	res := (&Reconciler{}).Reconcile("simple", remote, local, nil)

	assert.Equal(t, TreeState{"simple": files("a.json", "h1")}, res.Same)
	assert.Equal(t, TreeState{"simple": files("b.json", "h2")}, res.OnlyLocal)
	assert.Empty(t, res.Different)
	assert.Empty(t, res.OnlyRemote)
	assert.Empty(t, res.OnlyLocalDir)
	assert.Empty(t, res.OnlyRemoteDir)
	assert.False(t, res.IsClean())
}

func TestReconcile_Folders(t *testing.T) {
	remote := TreeState{
		"simple":       files("description.json", "d"),
		"simple/node3": files("extra.json", "x"),
		"simple/node4": {},
	}
	local := TreeState{
		"simple":       files("description.json", "d"),
		"simple/node5": files("new.sql", "n"),
		"simple/empty": {},
	}

	res := (&Reconciler{}).Reconcile("simple", remote, local, nil)

	assert.Equal(t, TreeState{"simple/node3": files("extra.json", "x")}, res.OnlyRemote)
	assert.Equal(t, TreeState{"simple/node3": {}, "simple/node4": {}}, res.OnlyRemoteDir)
	assert.Equal(t, TreeState{"simple/node5": files("new.sql", "n")}, res.OnlyLocal)
	assert.Equal(t, TreeState{"simple/node5": {}, "simple/empty": {}}, res.OnlyLocalDir)
}

func TestReconcile_Attribution(t *testing.T) {
	remote := TreeState{
		"simple/node1": files("description.json", "r1"),
		"simple/node2": files("data.json", "r2"),
	}
	local := TreeState{
		"simple/node1": files("description.json", "l1"),
		"simple/node2": files("data.json", "b2"),
	}
	baseline := TreeState{
		"simple/node1": files("description.json", "b1"),
		"simple/node2": files("data.json", "b2"),
	}

	t.Run("with baseline", func(t *testing.T) {
		res := (&Reconciler{}).Reconcile("simple", remote, local, baseline)
		assert.False(t, res.Degraded)
		assert.Equal(t, 2, res.Different.FileCount())
		assert.True(t, res.ChangedLocally("simple/node1", "description.json"))
		assert.False(t, res.ChangedLocally("simple/node2", "data.json"))
		assert.True(t, res.RemoteChanged.Contains("simple/node2/data.json"))
	})

	t.Run("file missing from baseline is local", func(t *testing.T) {
		res := (&Reconciler{}).Reconcile("simple", remote, local, TreeState{"simple/node2": files("data.json", "b2")})
		assert.True(t, res.ChangedLocally("simple/node1", "description.json"))
		assert.False(t, res.ChangedLocally("simple/node2", "data.json"))
	})

	t.Run("without baseline", func(t *testing.T) {
		res := (&Reconciler{}).Reconcile("simple", remote, local, nil)
		assert.True(t, res.Degraded)
		assert.Equal(t, 2, res.LocalChanged.Cardinality())
		assert.Equal(t, 0, res.RemoteChanged.Cardinality())
	})
}

func TestReconcile_FolderShadowedByFile(t *testing.T) {
	remote := TreeState{"simple": files("notes", "n")}
	local := TreeState{"simple": {}, "simple/notes": {}}

	res := (&Reconciler{}).Reconcile("simple", remote, local, nil)

	assert.Equal(t, TreeState{"simple": files("notes", "n")}, res.OnlyRemote)
	assert.Empty(t, res.OnlyLocalDir)
}

func TestReconcile_Ignored(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir())
	ignore.Load()

	remote := TreeState{
		"simple":                 files("a.json", "h1"),
		"simple/compiled-recipe": files("out.json", "c1"),
	}
	local := TreeState{
		"simple":                 files("a.json", "h1", ".DS_Store", "ds"),
		"simple/compiled-recipe": files("out.json", "c2"),
	}

	res := (&Reconciler{Ignore: ignore}).Reconcile("simple", remote, local, nil)

	assert.Equal(t, TreeState{"simple": files("a.json", "h1")}, res.Same)
	assert.True(t, res.IsClean())
}

func TestReconcile_Clean(t *testing.T) {
	tree := TreeState{"simple": files("a.json", "h1"), "simple/node1": files("b.json", "h2")}
	res := (&Reconciler{}).Reconcile("simple", tree, tree, tree)
	assert.True(t, res.IsClean())
	assert.Equal(t, 2, res.Same.FileCount())
}

func TestReconcile_PartitionCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	folders := []string{"r", "r/a", "r/b", "r/a/c"}
	names := []string{"x.json", "y.sql", "z.txt"}
	shas := []string{"1", "2"}

	randomTree := func() TreeState {
		tree := make(TreeState)
		for _, f := range folders {
			if rng.Intn(3) == 0 {
				continue
			}
			tree.EnsureFolder(f)
			for _, n := range names {
				if rng.Intn(2) == 0 {
					tree.Add(f, FileRecord{Filename: n, SHA: shas[rng.Intn(len(shas))]})
				}
			}
		}
		return tree
	}

	for i := 0; i < 200; i++ {
		remote, local := randomTree(), randomTree()
		res := (&Reconciler{}).Reconcile("r", remote, local, nil)

		seen := make(map[string]int)
		for _, bucket := range []TreeState{res.Same, res.Different, res.OnlyLocal, res.OnlyRemote} {
			for p := range bucket.Paths() {
				seen[p]++
			}
		}

		union := make(map[string]bool)
		for p := range remote.Paths() {
			union[p] = true
		}
		for p := range local.Paths() {
			union[p] = true
		}

		require.Len(t, seen, len(union), fmt.Sprintf("iteration %d", i))
		for p := range union {
			require.Equal(t, 1, seen[p], "iteration %d path %s", i, p)
		}
		for folder, recs := range res.OnlyLocalDir {
			_, inRemote := remote[folder]
			require.False(t, inRemote, folder)
			require.Empty(t, recs)
		}
		for folder := range res.OnlyRemoteDir {
			_, inLocal := local[folder]
			require.False(t, inLocal, folder)
		}
	}
}
