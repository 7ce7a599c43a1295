package directory

import (
	"context"
	"fmt"
	"strings"
)

// UpsertAsset creates or updates an asset. Field values are validated against
// the owning asset type inside the store transaction. Only internal
// (bookkeeping) writes may target the bootstrap asset type.
func (s *Service) UpsertAsset(ctx context.Context, req AssetUpsert) (*Asset, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: asset name is required", ErrInvalidInput)
	}
	if req.ID == nil && req.TypeID <= 0 {
		return nil, fmt.Errorf("%w: asset type is required", ErrInvalidInput)
	}
	if !req.Internal && req.TypeID == s.boot.AssetTypeID {
		return nil, fmt.Errorf("%w: cannot create an asset of the protected asset type (id: %d)", ErrInvalidInput, s.boot.AssetTypeID)
	}
	if req.Fields == nil {
		req.Fields = FieldValues{}
	}
	return s.store.UpsertAsset(ctx, req)
}

// Asset loads one asset by id.
func (s *Service) Asset(ctx context.Context, id int64) (*Asset, error) {
	return s.store.AssetByID(ctx, id)
}

// DeleteAssets removes the assets, every grant referencing them and their
// membership in container asset lists.
func (s *Service) DeleteAssets(ctx context.Context, assetIDs []int64) error {
	if len(assetIDs) == 0 {
		return fmt.Errorf("%w: no asset ids provided", ErrInvalidInput)
	}
	return s.store.DeleteAssets(ctx, assetIDs)
}
