package directory

import (
	"context"
	"fmt"
	"strings"
)

// CreateAssetType registers a new schema. Submitted fields are renumbered
// sequentially from zero; submitted ids are ignored.
func (s *Service) CreateAssetType(ctx context.Context, name string, fields []AssetTypeField) (*AssetType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: asset type name is required", ErrInvalidInput)
	}
	normalized := make([]AssetTypeField, len(fields))
	for i, f := range fields {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidInput, f.Type)
		}
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: field name is required", ErrInvalidInput)
		}
		f.ID = int64(i)
		normalized[i] = f
	}
	return s.store.CreateAssetType(ctx, name, normalized)
}

// AssetType loads one asset type by id.
func (s *Service) AssetType(ctx context.Context, id int64) (*AssetType, error) {
	return s.store.AssetTypeByID(ctx, id)
}

// EditAssetType replaces a schema's name and field list and migrates every
// asset of the type to the new shape in the same transaction. Fields
// submitted with a negative id are new and receive fresh ids; explicit ids
// must match existing fields. The bootstrap asset type cannot be edited.
func (s *Service) EditAssetType(ctx context.Context, id int64, name string, fields []AssetTypeField) (*AssetType, error) {
	if s.boot.ProtectedAssetType(id) {
		return nil, fmt.Errorf("%w: the %s asset type cannot be edited", ErrConflict, s.boot.AssetTypeName)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: asset type name is required", ErrInvalidInput)
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: field name is required", ErrInvalidInput)
		}
	}
	return s.store.UpdateAssetType(ctx, id, name, fields)
}

// DeleteAssetTypes removes the types together with all their assets, the
// grants referencing those assets and their container memberships. The
// bootstrap asset type cannot be deleted.
func (s *Service) DeleteAssetTypes(ctx context.Context, typeIDs []int64) error {
	if len(typeIDs) == 0 {
		return fmt.Errorf("%w: no asset type ids provided", ErrInvalidInput)
	}
	for _, id := range typeIDs {
		if s.boot.ProtectedAssetType(id) {
			return fmt.Errorf("%w: the %s asset type cannot be deleted", ErrConflict, s.boot.AssetTypeName)
		}
	}
	return s.store.DeleteAssetTypes(ctx, typeIDs)
}
