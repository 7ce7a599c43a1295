package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sigauth.org/internal/directory"
	"sigauth.org/internal/obs"
)

const assetTypeColumns = `id, name, fields, created`

func scanAssetType(row interface{ Scan(...any) error }) (*directory.AssetType, error) {
	var (
		t         directory.AssetType
		rawFields []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &rawFields, &t.Created); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(rawFields, &t.Fields); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateAssetType(ctx context.Context, name string, fields []directory.AssetTypeField) (*directory.AssetType, error) {
	fieldsJSON, err := marshalJSON(fields)
	if err != nil {
		return nil, err
	}
	t := directory.AssetType{Name: name, Fields: fields, Created: time.Now().Unix()}
	err = s.db.QueryRowContext(ctx, `
		insert into asset_types (name, fields, created)
		values ($1, $2, $3)
		returning id
	`, name, fieldsJSON, t.Created).Scan(&t.ID)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &t, nil
}

func (s *Store) AssetTypeByID(ctx context.Context, id int64) (*directory.AssetType, error) {
	t, err := scanAssetType(s.db.QueryRowContext(ctx,
		`select `+assetTypeColumns+` from asset_types where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset type %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateAssetType replaces the schema and migrates every asset of the type to
// the new shape in the same transaction. Locking the type row serializes
// concurrent schema changes for one type.
func (s *Store) UpdateAssetType(ctx context.Context, id int64, name string, fields []directory.AssetTypeField) (*directory.AssetType, error) {
	start := time.Now()
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanAssetType(tx.QueryRowContext(ctx,
		`select `+assetTypeColumns+` from asset_types where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset type %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	normalized, err := directory.NormalizeFieldUpdate(current.Fields, fields)
	if err != nil {
		return nil, err
	}
	diff := directory.DiffFields(current.Fields, normalized)

	var migrated int64
	if !diff.Empty() {
		migrated, err = s.migrateAssets(ctx, tx, id, diff)
		if err != nil {
			return nil, err
		}
	}

	fieldsJSON, err := marshalJSON(normalized)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		update asset_types set name = $2, fields = $3 where id = $1
	`, id, name, fieldsJSON); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	obs.ObserveSchemaMigration(migrated, time.Since(start))

	updated := *current
	updated.Name = name
	updated.Fields = normalized
	return &updated, nil
}

// migrateAssets rewrites the field map of every asset of the type according
// to the diff and reports how many rows changed.
func (s *Store) migrateAssets(ctx context.Context, tx *sql.Tx, typeID int64, diff directory.FieldDiff) (int64, error) {
	rows, err := tx.QueryContext(ctx,
		`select id, fields from assets where type_id = $1 order by id`, typeID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type rewrite struct {
		id     int64
		fields directory.FieldValues
	}
	var pending []rewrite
	for rows.Next() {
		var (
			assetID int64
			raw     []byte
		)
		if err := rows.Scan(&assetID, &raw); err != nil {
			return 0, err
		}
		fields := directory.FieldValues{}
		if err := unmarshalJSON(raw, &fields); err != nil {
			return 0, err
		}
		if next, changed := directory.MigrateFields(fields, diff); changed {
			pending = append(pending, rewrite{id: assetID, fields: next})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, rw := range pending {
		fieldsJSON, err := marshalJSON(rw.fields)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`update assets set fields = $2 where id = $1`, rw.id, fieldsJSON); err != nil {
			return 0, err
		}
	}
	return int64(len(pending)), nil
}

// DeleteAssetTypes removes the types together with all their assets and the
// references those assets hold.
func (s *Store) DeleteAssetTypes(ctx context.Context, ids []int64) error {
	ids = dedupe(ids)
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "asset_types", ids); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx,
		`select id from assets where type_id = any($1::int8[]) order by id`, int8Array(ids))
	if err != nil {
		return err
	}
	var orphaned []int64
	for rows.Next() {
		var assetID int64
		if err := rows.Scan(&assetID); err != nil {
			rows.Close()
			return err
		}
		orphaned = append(orphaned, assetID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, assetID := range orphaned {
		if err := deleteAssetCascade(ctx, tx, assetID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `delete from asset_types where id = any($1::int8[])`, int8Array(ids)); err != nil {
		return err
	}
	return tx.Commit()
}
