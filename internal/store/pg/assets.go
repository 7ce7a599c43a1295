package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sigauth.org/internal/directory"
)

const assetColumns = `id, name, type_id, fields, created`

func scanAsset(row interface{ Scan(...any) error }) (*directory.Asset, error) {
	var (
		a         directory.Asset
		rawFields []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.TypeID, &rawFields, &a.Created); err != nil {
		return nil, err
	}
	a.Fields = directory.FieldValues{}
	if err := unmarshalJSON(rawFields, &a.Fields); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAsset creates or updates an asset, validating the field values
// against the owning type's schema inside the transaction.
func (s *Store) UpsertAsset(ctx context.Context, req directory.AssetUpsert) (*directory.Asset, error) {
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if req.ID != nil {
		current, err := scanAsset(tx.QueryRowContext(ctx,
			`select `+assetColumns+` from assets where id = $1 for update`, *req.ID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset %d", directory.ErrNotFound, *req.ID)
		}
		if err != nil {
			return nil, err
		}
		typeFields, err := s.typeFields(ctx, tx, current.TypeID)
		if err != nil {
			return nil, err
		}
		if err := directory.ValidateAssetFields(typeFields, req.Fields); err != nil {
			return nil, err
		}
		fields, err := marshalJSON(req.Fields)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			update assets set name = $2, fields = $3 where id = $1
		`, *req.ID, req.Name, fields); err != nil {
			return nil, mapPgError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		updated := *current
		updated.Name = req.Name
		updated.Fields = req.Fields.Clone()
		return &updated, nil
	}

	typeFields, err := s.typeFields(ctx, tx, req.TypeID)
	if err != nil {
		return nil, err
	}
	if err := directory.ValidateAssetFields(typeFields, req.Fields); err != nil {
		return nil, err
	}
	fields, err := marshalJSON(req.Fields)
	if err != nil {
		return nil, err
	}
	a := directory.Asset{
		Name:    req.Name,
		TypeID:  req.TypeID,
		Fields:  req.Fields.Clone(),
		Created: time.Now().Unix(),
	}
	err = tx.QueryRowContext(ctx, `
		insert into assets (name, type_id, fields, created)
		values ($1, $2, $3, $4)
		returning id
	`, a.Name, a.TypeID, fields, a.Created).Scan(&a.ID)
	if err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AssetByID(ctx context.Context, id int64) (*directory.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		`select `+assetColumns+` from assets where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) DeleteAssets(ctx context.Context, ids []int64) error {
	ids = dedupe(ids)
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "assets", ids); err != nil {
		return err
	}
	for _, id := range ids {
		if err := deleteAssetCascade(ctx, tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// deleteAssetCascade removes one asset together with the grants referencing
// it and its membership in container asset lists.
func deleteAssetCascade(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx,
		`delete from permission_instances where asset_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update containers set assets = array_remove(assets, $1) where assets @> array[$1]::int8[]`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from assets where id = $1`, id); err != nil {
		return err
	}
	return nil
}

func (s *Store) typeFields(ctx context.Context, tx *sql.Tx, typeID int64) ([]directory.AssetTypeField, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx, `select fields from asset_types where id = $1`, typeID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset type %d", directory.ErrNotFound, typeID)
	}
	if err != nil {
		return nil, err
	}
	var fields []directory.AssetTypeField
	if err := unmarshalJSON(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
