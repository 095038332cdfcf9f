package dksdk

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"

	"github.com/imroc/req/v3"
)

const (
	v2RecipeTree   = "/v2/recipe/tree"
	v2RecipeGet    = "/v2/recipe/get"
	v2RecipeFile   = "/v2/recipe/file"
	v2RecipeUpdate = "/v2/recipe/update"
	v2RecipeCreate = "/v2/recipe/create"
	v2RecipeDelete = "/v2/recipe/delete"
	v2FileMerge    = "/v2/file/merge"
)

type RecipeAPI struct {
	client *req.Client
}

func newRecipeAPI(client *req.Client) *RecipeAPI {
	return &RecipeAPI{
		client: client,
	}
}

// Tree returns the remote folder -> [{filename, sha}] view of every recipe
// the server includes for (kitchen, recipe).
func (r *RecipeAPI) Tree(ctx context.Context, kitchen, recipe string) (*RecipeTreeResponse, error) {
	if err := requireNames(kitchen, recipe); err != nil {
		return nil, err
	}

	var apiResp RecipeTreeResponse
	if err := send(ctx, r.client, http.MethodGet, apiPath(v2RecipeTree, kitchen, recipe), nil, &apiResp, "recipe tree"); err != nil {
		return nil, err
	}
	if err := apiResp.check("recipe tree"); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

// Get fetches file contents of a recipe. With no files the whole recipe is
// returned; otherwise files may hold paths relative to the recipe root or
// folder wildcards like "node1/*".
func (r *RecipeAPI) Get(ctx context.Context, kitchen, recipe string, files []string) (*GetRecipeResponse, error) {
	if err := requireNames(kitchen, recipe); err != nil {
		return nil, err
	}

	var body any
	if len(files) > 0 {
		body = &GetRecipeRequest{Files: files}
	}

	var apiResp GetRecipeResponse
	if err := send(ctx, r.client, http.MethodPost, apiPath(v2RecipeGet, kitchen, recipe), body, &apiResp, "recipe get"); err != nil {
		return nil, err
	}
	if err := apiResp.check("recipe get"); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

// File returns the current content of one file.
func (r *RecipeAPI) File(ctx context.Context, kitchen, recipe, filePath string) (string, error) {
	if err := requireNames(kitchen, recipe, filePath); err != nil {
		return "", err
	}

	var apiResp GetFileResponse
	if err := send(ctx, r.client, http.MethodGet, apiPath(v2RecipeFile, kitchen, recipe, filePath), nil, &apiResp, "recipe file"); err != nil {
		return "", err
	}
	if err := apiResp.check("recipe file"); err != nil {
		return "", err
	}
	return apiResp.Contents, nil
}

// MergeFile asks the server for a three-way merge of local content against
// the latest remote version. It has no side effects on the server. A
// response whose status is not success is returned as is, not as an error.
func (r *RecipeAPI) MergeFile(ctx context.Context, kitchen, recipe, filePath string, local []byte, origHead, lastFileSHA string) (*MergeFileResponse, error) {
	if err := requireNames(kitchen, recipe, filePath, origHead, lastFileSHA); err != nil {
		return nil, err
	}

	body := &MergeFileRequest{
		OrigHead:    origHead,
		LastFileSHA: lastFileSHA,
		Content:     base64.StdEncoding.EncodeToString(local),
	}

	var apiResp MergeFileResponse
	if err := send(ctx, r.client, http.MethodPost, apiPath(v2FileMerge, kitchen, recipe, filePath), body, &apiResp, "file merge"); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

// UpdateFiles applies a whole change-set in one request.
func (r *RecipeAPI) UpdateFiles(ctx context.Context, kitchen, recipe, message string, files map[string]FileChange) (*UpdateFilesResponse, error) {
	if err := requireNames(kitchen, recipe); err != nil {
		return nil, err
	}

	body := &UpdateFilesRequest{Message: message, Files: files}

	var apiResp UpdateFilesResponse
	if err := send(ctx, r.client, http.MethodPost, apiPath(v2RecipeUpdate, kitchen, recipe), body, &apiResp, "recipe update"); err != nil {
		return nil, err
	}
	if apiResp.Status != "" && apiResp.Status != statusSuccess {
		apiErr := NewAPIError(0, apiResp.Status, apiResp.Error)
		apiErr.Issues = apiResp.Issues
		return nil, fmt.Errorf("recipe update %w", apiErr)
	}
	return &apiResp, nil
}

// UpdateFile replaces the content of one existing file.
func (r *RecipeAPI) UpdateFile(ctx context.Context, kitchen, recipe, message, filePath, contents string) error {
	return r.fileCall(ctx, http.MethodPost, v2RecipeUpdate, kitchen, recipe, &FileRequest{
		Message: message, FilePath: filePath, File: contents,
	}, "file update")
}

// AddFile creates a new file.
func (r *RecipeAPI) AddFile(ctx context.Context, kitchen, recipe, message, filePath, contents string) error {
	return r.fileCall(ctx, http.MethodPut, v2RecipeCreate, kitchen, recipe, &FileRequest{
		Message: message, FilePath: filePath, File: contents,
	}, "file add")
}

// DeleteFile removes one file.
func (r *RecipeAPI) DeleteFile(ctx context.Context, kitchen, recipe, message, filePath string) error {
	return r.fileCall(ctx, http.MethodDelete, v2RecipeDelete, kitchen, recipe, &FileRequest{
		Message: message, FilePath: filePath, File: path.Base(filePath),
	}, "file delete")
}

func (r *RecipeAPI) fileCall(ctx context.Context, method, route, kitchen, recipe string, body *FileRequest, operation string) error {
	if err := requireNames(kitchen, recipe, body.FilePath); err != nil {
		return err
	}

	var apiResp FileResponse
	if err := send(ctx, r.client, method, apiPath(route, kitchen, recipe), body, &apiResp, operation); err != nil {
		return err
	}
	return apiResp.check(operation)
}

// send performs one request and decodes the body into out.
func send(ctx context.Context, client *req.Client, method, route string, body, out any, operation string) error {
	request := client.R().SetContext(ctx)
	if body != nil {
		request.SetBody(body)
	}

	resp, err := request.Send(method, route)
	if err := handleAPIError(resp, err, operation); err != nil {
		return err
	}

	if out == nil || len(resp.Bytes()) == 0 {
		return nil
	}
	if err := decodeLegacy(resp.Bytes(), out); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
