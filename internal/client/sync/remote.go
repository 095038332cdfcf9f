package sync

import (
	"context"

	"github.com/datakitchen/dkcli/internal/dksdk"
)

// Remote is the part of the recipe API the syncer needs.
type Remote interface {
	Tree(ctx context.Context, kitchen, recipe string) (*dksdk.RecipeTreeResponse, error)
	Get(ctx context.Context, kitchen, recipe string, files []string) (*dksdk.GetRecipeResponse, error)
	File(ctx context.Context, kitchen, recipe, filePath string) (string, error)
	MergeFile(ctx context.Context, kitchen, recipe, filePath string, local []byte, origHead, lastFileSHA string) (*dksdk.MergeFileResponse, error)
	UpdateFiles(ctx context.Context, kitchen, recipe, message string, files map[string]dksdk.FileChange) (*dksdk.UpdateFilesResponse, error)
	UpdateFile(ctx context.Context, kitchen, recipe, message, filePath, contents string) error
	AddFile(ctx context.Context, kitchen, recipe, message, filePath, contents string) error
	DeleteFile(ctx context.Context, kitchen, recipe, message, filePath string) error
}

var _ Remote = (*dksdk.RecipeAPI)(nil)
