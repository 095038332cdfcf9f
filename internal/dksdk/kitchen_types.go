package dksdk

import (
	"encoding/base64"
	"fmt"
)

const (
	PreviewStatusConflict = "conflict"
	PreviewStatusResolved = "resolved"
)

// MergePreviewItem describes one changed file of a kitchen merge preview.
// Base, Left, Right and Merge are base64 encoded.
type MergePreviewItem struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Base   string `json:"base,omitempty"`
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
	Merge  string `json:"merge,omitempty"`
}

func (i *MergePreviewItem) IsConflict() bool {
	return i.Status == PreviewStatusConflict
}

// Artifacts decodes the four staged variants keyed by suffix.
func (i *MergePreviewItem) Artifacts() (map[string][]byte, error) {
	out := make(map[string][]byte, 4)
	for suffix, encoded := range map[string]string{
		"base":  i.Base,
		"left":  i.Left,
		"right": i.Right,
		"merge": i.Merge,
	} {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrMalformedResponse, i.File, suffix, err)
		}
		out[suffix] = data
	}
	return out, nil
}

type MergePreviewResponse struct {
	Results []MergePreviewItem `json:"results"`
}

// ConflictInfo is a conflicted file as exchanged with the merge endpoints.
// ConflictTags holds the merged content with conflict markers, base64
// encoded when it comes from a kitchen merge.
type ConflictInfo struct {
	Filename       string `json:"filename"`
	FromKitchen    string `json:"from_kitchen,omitempty"`
	ToKitchen      string `json:"to_kitchen,omitempty"`
	SHA            string `json:"sha,omitempty"`
	FolderInRecipe string `json:"folder_in_recipe,omitempty"`
	ConflictTags   string `json:"conflict_tags,omitempty"`
	Status         string `json:"status,omitempty"`
}

// ResolvedConflicts is recipe -> folder -> conflict key -> conflict.
type ResolvedConflicts map[string]map[string]map[string]ConflictInfo

type MergeKitchensRequest struct {
	ResolvedConflicts ResolvedConflicts `json:"resolved_conflicts,omitempty"`
}

type ManualMergeRequest struct {
	Files map[string]string `json:"files"`
}

// MergedFile is a per-file change line of a successful merge.
type MergedFile struct {
	Filename  string `json:"filename"`
	Changes   int    `json:"changes"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type MergeStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

type MergeInfo struct {
	Conflicts   map[string]map[string][]ConflictInfo `json:"conflicts,omitempty"`
	Recipes     map[string]map[string][]MergedFile   `json:"recipes,omitempty"`
	Stats       MergeStats                           `json:"stats"`
	MergeStatus int                                  `json:"merge_status,omitempty"`
	Message     string                               `json:"message,omitempty"`
}

// MergeStatusNoContent means there was nothing to merge.
const MergeStatusNoContent = 204

type MergeKitchenResult struct {
	Status    string    `json:"status"`
	MergeInfo MergeInfo `json:"merge_info"`
}

type MergeKitchensResponse struct {
	Result MergeKitchenResult `json:"merge-kitchen-result"`
}

func (r *MergeKitchensResponse) OK() bool {
	return r.Result.Status == statusSuccess
}

// HasConflicts reports whether any recipe came back with conflicted files.
func (r *MergeKitchensResponse) HasConflicts() bool {
	for _, folders := range r.Result.MergeInfo.Conflicts {
		for _, files := range folders {
			if len(files) > 0 {
				return true
			}
		}
	}
	return false
}
