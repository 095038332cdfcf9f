package dksdk

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// FileRecord is a file entry of a remote recipe tree.
type FileRecord struct {
	Filename string `json:"filename"`
	SHA      string `json:"sha"`
}

// RecipeTree maps folder keys ("recipe/node1") to their files.
type RecipeTree map[string][]FileRecord

type RecipeTreeResponse struct {
	statusEnvelope
	OrigHead string                `json:"ORIG_HEAD,omitempty"`
	Recipes  map[string]RecipeTree `json:"recipes"`
}

// RemoteFile is a file payload returned by recipe get. Exactly one of JSON,
// Text or Content is normally set.
type RemoteFile struct {
	Filename string          `json:"filename"`
	SHA      string          `json:"sha,omitempty"`
	JSON     json.RawMessage `json:"json,omitempty"`
	Text     *string         `json:"text,omitempty"`
	Content  *string         `json:"content,omitempty"`
}

// Bytes returns the file content as written to disk. A JSON string is written
// verbatim; a JSON document is indented with four spaces.
func (f *RemoteFile) Bytes() ([]byte, error) {
	switch {
	case len(f.JSON) > 0:
		raw := bytes.TrimSpace(f.JSON)
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := jsonUnmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, f.Filename, err)
			}
			return []byte(s), nil
		}
		var buf bytes.Buffer
		if err := jsonIndent(&buf, raw, "", "    "); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, f.Filename, err)
		}
		return buf.Bytes(), nil
	case f.Text != nil:
		return []byte(*f.Text), nil
	case f.Content != nil:
		return []byte(*f.Content), nil
	}
	return []byte{}, nil
}

// RemoteRecipe maps folder keys to file payloads.
type RemoteRecipe map[string][]RemoteFile

type GetRecipeRequest struct {
	Files []string `json:"recipe-files,omitempty"`
}

type GetRecipeResponse struct {
	statusEnvelope
	OrigHead string                  `json:"ORIG_HEAD"`
	Recipes  map[string]RemoteRecipe `json:"recipes"`
}

type GetFileResponse struct {
	statusEnvelope
	Contents string `json:"contents"`
}

type MergeFileRequest struct {
	OrigHead    string `json:"orig_head"`
	LastFileSHA string `json:"last_file_sha"`
	Content     string `json:"content"` // base64 of the local file
}

type MergeFileResponse struct {
	Status        string `json:"status"`
	MergedContent string `json:"merged_content"` // base64
	Error         string `json:"error,omitempty"`
}

func (r *MergeFileResponse) OK() bool {
	return r.Status == statusSuccess
}

// Merged decodes MergedContent.
func (r *MergeFileResponse) Merged() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(r.MergedContent)
	if err != nil {
		return nil, fmt.Errorf("%w: merged content: %w", ErrMalformedResponse, err)
	}
	return data, nil
}

// FileChange is one entry of a recipe update. The zero value deletes the file.
type FileChange struct {
	Contents *string `json:"contents,omitempty"`
	IsNew    *bool   `json:"isNew,omitempty"`
}

func UpdateChange(contents string, isNew bool) FileChange {
	return FileChange{Contents: &contents, IsNew: &isNew}
}

func DeleteChange() FileChange {
	return FileChange{}
}

func (c FileChange) IsDelete() bool {
	return c.Contents == nil
}

type UpdateFilesRequest struct {
	Message string                `json:"message"`
	Files   map[string]FileChange `json:"files"`
}

// UpdateFilesResponse carries the validation issues and, per changed path,
// whether the server applied it.
type UpdateFilesResponse struct {
	Status string
	Error  string
	Branch string
	Issues []Issue
	Files  map[string]bool
}

func (r *UpdateFilesResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := jsonUnmarshal(data, &raw); err != nil {
		return err
	}

	r.Files = make(map[string]bool)
	for key, value := range raw {
		var err error
		switch key {
		case "status":
			err = jsonUnmarshal(value, &r.Status)
		case "branch":
			err = jsonUnmarshal(value, &r.Branch)
		case "issues":
			err = jsonUnmarshal(value, &r.Issues)
		case "error":
			err = jsonUnmarshal(value, &r.Error)
		default:
			var ok bool
			if jsonUnmarshal(value, &ok) == nil {
				r.Files[key] = ok
			}
		}
		if err != nil {
			return fmt.Errorf("update response %s: %w", key, err)
		}
	}
	return nil
}

// Errors returns the issues of error severity.
func (r *UpdateFilesResponse) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if strings.EqualFold(i.Severity, SeverityError) {
			out = append(out, i)
		}
	}
	return out
}

// FailedFiles lists the paths the server did not update, sorted.
func (r *UpdateFilesResponse) FailedFiles() []string {
	var out []string
	for p, ok := range r.Files {
		if !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// FileRequest is the body of single-file update, create and delete calls.
// For deletes File holds the base name.
type FileRequest struct {
	Message  string `json:"message"`
	FilePath string `json:"filepath"`
	File     string `json:"file"`
}

type FileResponse struct {
	statusEnvelope
}
