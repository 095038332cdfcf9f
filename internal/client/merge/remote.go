package merge

import (
	"context"

	"github.com/datakitchen/dkcli/internal/dksdk"
)

// Remote is the part of the kitchen API a merge needs.
type Remote interface {
	MergePreview(ctx context.Context, from, to string) ([]dksdk.MergePreviewItem, error)
	Merge(ctx context.Context, from, to string, resolved dksdk.ResolvedConflicts) (*dksdk.MergeKitchensResponse, error)
	ManualMerge(ctx context.Context, from, to string, files map[string]string) (*dksdk.MergeKitchensResponse, error)
}

// FileFetcher returns the remote content of one recipe file.
type FileFetcher interface {
	File(ctx context.Context, kitchenName, recipeName, filePath string) (string, error)
}

var (
	_ Remote      = (*dksdk.KitchenAPI)(nil)
	_ FileFetcher = (*dksdk.RecipeAPI)(nil)
)
