package dksdk

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSDK(t *testing.T, handler http.Handler) *DKSDK {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sdk, err := New(&Config{BaseURL: srv.URL, Token: "tok"})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	return sdk
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrNoServerURL)
	assert.ErrorIs(t, (&Config{BaseURL: "not a url"}).Validate(), ErrInvalidServerURL)
	assert.NoError(t, (&Config{BaseURL: "https://cloud.datakitchen.io"}).Validate())
}

func TestAPIPath(t *testing.T) {
	assert.Equal(t, "/v2/recipe/tree/dev/simple", apiPath(v2RecipeTree, "dev", "simple"))
	assert.Equal(t, "/v2/recipe/file/dev/simple/node1/my%20file.json", apiPath(v2RecipeFile, "dev", "simple", "/node1/my file.json"))
}

func TestRecipeTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/recipe/tree/dev/simple", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"recipes": map[string]any{
				"simple": map[string]any{
					"simple":       []map[string]string{{"filename": "a.json", "sha": "h1"}},
					"simple/node1": []map[string]string{},
				},
			},
		})
	})
	sdk := newTestSDK(t, mux)

	resp, err := sdk.Recipe.Tree(context.Background(), "dev", "simple")
	require.NoError(t, err)
	tree := resp.Recipes["simple"]
	assert.Equal(t, []FileRecord{{Filename: "a.json", SHA: "h1"}}, tree["simple"])
	assert.Contains(t, tree, "simple/node1")
	assert.Empty(t, tree["simple/node1"])
}

func TestRecipeGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/recipe/get/dev/simple", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			var req GetRecipeRequest
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, []string{"node1/*", "description.json"}, req.Files)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"status":    "success",
			"ORIG_HEAD": "abc",
			"recipes": map[string]any{
				"simple": map[string]any{
					"simple": []map[string]any{
						{"filename": "description.json", "json": map[string]any{"name": "simple"}},
						{"filename": "notes.txt", "text": "hello"},
						{"filename": "raw.json", "json": `{"a":1}`},
					},
				},
			},
		})
	})
	sdk := newTestSDK(t, mux)

	resp, err := sdk.Recipe.Get(context.Background(), "dev", "simple", []string{"node1/*", "description.json"})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.OrigHead)

	files := resp.Recipes["simple"]["simple"]
	require.Len(t, files, 3)

	desc, err := files[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"name\": \"simple\"\n}", string(desc))

	text, err := files[1].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(text))

	raw, err := files[2].Bytes()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))
}

func TestRecipeGet_StatusFailure(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "failed", "error": "no such recipe"})
	}))

	_, err := sdk.Recipe.Get(context.Background(), "dev", "simple", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "no such recipe")
}

func TestMergeFile(t *testing.T) {
	merged := base64.StdEncoding.EncodeToString([]byte("merged"))
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/file/merge/dev/simple/node1/a.json", r.URL.Path)
		var req MergeFileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "head", req.OrigHead)
		assert.Equal(t, "none", req.LastFileSHA)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("local")), req.Content)
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "success", "merged_content": merged})
	}))

	resp, err := sdk.Recipe.MergeFile(context.Background(), "dev", "simple", "node1/a.json", []byte("local"), "head", "none")
	require.NoError(t, err)
	require.True(t, resp.OK())
	data, err := resp.Merged()
	require.NoError(t, err)
	assert.Equal(t, "merged", string(data))
}

func TestUpdateFiles(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"message":"msg","files":{"a.json":{"contents":"x","isNew":false},"gone.json":{}}}`, string(body))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"status":    "success",
			"branch":    "dev",
			"issues":    []map[string]string{{"severity": "warning", "file": "a.json", "description": "meh"}},
			"a.json":    true,
			"gone.json": false,
		})
	}))

	resp, err := sdk.Recipe.UpdateFiles(context.Background(), "dev", "simple", "msg", map[string]FileChange{
		"a.json":    UpdateChange("x", false),
		"gone.json": DeleteChange(),
	})
	require.NoError(t, err)
	assert.Equal(t, "dev", resp.Branch)
	assert.Empty(t, resp.Errors())
	assert.Len(t, resp.Issues, 1)
	assert.Equal(t, []string{"gone.json"}, resp.FailedFiles())
}

func TestFileCalls(t *testing.T) {
	var calls []string
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req FileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, r.Method+" "+r.URL.Path+" "+req.FilePath+" "+req.File)
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "success"})
	}))
	ctx := context.Background()

	require.NoError(t, sdk.Recipe.UpdateFile(ctx, "dev", "simple", "m", "node1/a.json", "A"))
	require.NoError(t, sdk.Recipe.AddFile(ctx, "dev", "simple", "m", "node1/b.json", "B"))
	require.NoError(t, sdk.Recipe.DeleteFile(ctx, "dev", "simple", "m", "node1/c.json"))

	assert.Equal(t, []string{
		"POST /v2/recipe/update/dev/simple node1/a.json A",
		"PUT /v2/recipe/create/dev/simple node1/b.json B",
		"DELETE /v2/recipe/delete/dev/simple node1/c.json c.json",
	}, calls)
}

func TestAPIErrors(t *testing.T) {
	t.Run("error body", func(t *testing.T) {
		sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusForbidden, map[string]string{"error": "not allowed"})
		}))
		_, err := sdk.Recipe.File(context.Background(), "dev", "simple", "a.json")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "not allowed", apiErr.ErrorMessage())
	})

	t.Run("plain body", func(t *testing.T) {
		sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		_, err := sdk.Recipe.File(context.Background(), "dev", "simple", "a.json")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "boom", apiErr.Message)
	})

	t.Run("preview timeout", func(t *testing.T) {
		sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		_, err := sdk.Kitchen.MergePreview(context.Background(), "feature", "dev")
		assert.ErrorIs(t, err, ErrServerTimeout)
		assert.Contains(t, err.Error(), "Server timeout (Code 504)")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		sdk, err := New(&Config{BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = sdk.Recipe.Tree(context.Background(), "dev", "simple")
		assert.ErrorIs(t, err, ErrRemoteUnreachable)
	})

	t.Run("no retries", func(t *testing.T) {
		var hits atomic.Int32
		sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		_, err := sdk.Recipe.Tree(context.Background(), "dev", "simple")
		assert.Error(t, err)
		assert.EqualValues(t, 1, hits.Load())
	})

	t.Run("empty names", func(t *testing.T) {
		sdk := newTestSDK(t, http.NotFoundHandler())
		_, err := sdk.Recipe.Tree(context.Background(), "", "simple")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestKitchenMerge(t *testing.T) {
	var manualCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/kitchen/merge/feature/dev", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, http.StatusOK, map[string]any{"results": []map[string]string{{
				"file":   "simple/a.json",
				"status": "conflict",
				"base":   base64.StdEncoding.EncodeToString([]byte("B")),
				"left":   base64.StdEncoding.EncodeToString([]byte("L")),
				"right":  base64.StdEncoding.EncodeToString([]byte("R")),
				"merge":  base64.StdEncoding.EncodeToString([]byte("M")),
			}}})
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			assert.True(t, strings.Contains(string(body), "resolved_conflicts"))
			writeJSON(t, w, http.StatusOK, map[string]any{"merge-kitchen-result": map[string]any{
				"status": "success",
				"merge_info": map[string]any{
					"recipes": map[string]any{"simple": map[string]any{"simple": []map[string]any{
						{"filename": "a.json", "changes": 2, "additions": 1, "deletions": 1},
					}}},
					"stats": map[string]int{"additions": 1, "deletions": 1},
				},
			}})
		}
	})
	mux.HandleFunc("/v2/kitchen/manualmerge/feature/dev", func(w http.ResponseWriter, r *http.Request) {
		manualCalls.Add(1)
		var req ManualMergeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]string{"simple/a.json": "resolved"}, req.Files)
		writeJSON(t, w, http.StatusOK, map[string]any{"merge-kitchen-result": map[string]any{"status": "failed"}})
	})
	sdk := newTestSDK(t, mux)
	ctx := context.Background()

	items, err := sdk.Kitchen.MergePreview(ctx, "feature", "dev")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsConflict())
	artifacts, err := items[0].Artifacts()
	require.NoError(t, err)
	assert.Equal(t, "M", string(artifacts["merge"]))

	resp, err := sdk.Kitchen.Merge(ctx, "feature", "dev", ResolvedConflicts{
		"simple": {"simple": {"k": {Filename: "a.json", Status: "resolved"}}},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.False(t, resp.HasConflicts())
	assert.Equal(t, 1, resp.Result.MergeInfo.Stats.Additions)

	_, err = sdk.Kitchen.ManualMerge(ctx, "feature", "dev", map[string]string{"simple/a.json": "resolved"})
	assert.Error(t, err)
	assert.EqualValues(t, 1, manualCalls.Load())
}
