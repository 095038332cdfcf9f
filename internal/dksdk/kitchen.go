package dksdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

const (
	v2KitchenMerge       = "/v2/kitchen/merge"
	v2KitchenManualMerge = "/v2/kitchen/manualmerge"
)

type KitchenAPI struct {
	client *req.Client
}

func newKitchenAPI(client *req.Client) *KitchenAPI {
	return &KitchenAPI{
		client: client,
	}
}

// MergePreview lists the files that differ between two kitchens. A gateway
// timeout is reported as ErrServerTimeout.
func (k *KitchenAPI) MergePreview(ctx context.Context, from, to string) ([]MergePreviewItem, error) {
	if err := requireNames(from, to); err != nil {
		return nil, err
	}

	var apiResp MergePreviewResponse
	if err := send(ctx, k.client, http.MethodGet, apiPath(v2KitchenMerge, from, to), nil, &apiResp, "kitchen merge preview"); err != nil {
		return nil, err
	}
	return apiResp.Results, nil
}

// Merge merges from into to on the server, passing conflicts the user
// already resolved locally. The result may report new conflicts.
func (k *KitchenAPI) Merge(ctx context.Context, from, to string, resolved ResolvedConflicts) (*MergeKitchensResponse, error) {
	if err := requireNames(from, to); err != nil {
		return nil, err
	}

	var body any
	if len(resolved) > 0 {
		body = &MergeKitchensRequest{ResolvedConflicts: resolved}
	}

	var apiResp MergeKitchensResponse
	if err := send(ctx, k.client, http.MethodPost, apiPath(v2KitchenMerge, from, to), body, &apiResp, "kitchen merge"); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

// ManualMerge merges from into to using the given resolved file contents,
// keyed by path. It is one atomic request for the kitchen pair.
func (k *KitchenAPI) ManualMerge(ctx context.Context, from, to string, files map[string]string) (*MergeKitchensResponse, error) {
	if err := requireNames(from, to); err != nil {
		return nil, err
	}

	var apiResp MergeKitchensResponse
	body := &ManualMergeRequest{Files: files}
	if err := send(ctx, k.client, http.MethodPost, apiPath(v2KitchenManualMerge, from, to), body, &apiResp, "kitchen manual merge"); err != nil {
		return nil, err
	}
	if !apiResp.OK() {
		return &apiResp, fmt.Errorf("kitchen manual merge %w", NewAPIError(0, apiResp.Result.Status, "backend returned with error status"))
	}
	return &apiResp, nil
}
