package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sigauth.org/internal/directory"
)

const containerColumns = `id, name, assets, apps, created`

func scanContainer(row interface{ Scan(...any) error }) (*directory.Container, error) {
	var (
		c         directory.Container
		rawAssets []byte
		rawApps   []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &rawAssets, &rawApps, &c.Created); err != nil {
		return nil, err
	}
	var err error
	if c.Assets, err = parseInt8Array(rawAssets); err != nil {
		return nil, err
	}
	if c.Apps, err = parseInt8Array(rawApps); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContainer inserts the container, its bookkeeping asset and the link
// of that asset into the bootstrap container, all in one transaction.
func (s *Store) CreateContainer(ctx context.Context, name string, assets, apps []int64) (*directory.Container, *directory.Asset, error) {
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "assets", assets); err != nil {
		return nil, nil, err
	}
	if err := requireAll(ctx, tx, "apps", apps); err != nil {
		return nil, nil, err
	}

	now := time.Now().Unix()
	c := directory.Container{Name: name, Assets: assets, Apps: apps, Created: now}
	err = tx.QueryRowContext(ctx, `
		insert into containers (name, assets, apps, created)
		values ($1, $2::int8[], $3::int8[], $4)
		returning id
	`, name, int8Array(assets), int8Array(apps), now).Scan(&c.ID)
	if err != nil {
		return nil, nil, mapPgError(err)
	}

	book := directory.Asset{
		Name:   fmt.Sprintf("%d - %s", c.ID, name),
		TypeID: s.boot.AssetTypeID,
		Fields: directory.FieldValues{
			directory.ContainerAssetFieldID:   float64(c.ID),
			directory.ContainerAssetFieldName: name,
		},
		Created: now,
	}
	fields, err := marshalJSON(book.Fields)
	if err != nil {
		return nil, nil, err
	}
	err = tx.QueryRowContext(ctx, `
		insert into assets (name, type_id, fields, created)
		values ($1, $2, $3, $4)
		returning id
	`, book.Name, book.TypeID, fields, now).Scan(&book.ID)
	if err != nil {
		return nil, nil, mapPgError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		update containers set assets = array_append(assets, $2) where id = $1
	`, s.boot.ContainerID, book.ID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &c, &book, nil
}

func (s *Store) ContainerByID(ctx context.Context, id int64) (*directory.Container, error) {
	c, err := scanContainer(s.db.QueryRowContext(ctx,
		`select `+containerColumns+` from containers where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: container %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateContainer replaces the membership sets. Grants scoped to this
// container through a removed app or removed asset are deleted, and the
// bookkeeping asset is renamed to follow the container.
func (s *Store) UpdateContainer(ctx context.Context, id int64, name string, assets, apps []int64) (*directory.Container, error) {
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanContainer(tx.QueryRowContext(ctx,
		`select `+containerColumns+` from containers where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: container %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := requireAll(ctx, tx, "assets", assets); err != nil {
		return nil, err
	}
	if err := requireAll(ctx, tx, "apps", apps); err != nil {
		return nil, err
	}

	removedApps := removedIDs(current.Apps, apps)
	if len(removedApps) > 0 {
		if _, err := tx.ExecContext(ctx, `
			delete from permission_instances
			where container_id = $1 and app_id = any($2::int8[])
		`, id, int8Array(removedApps)); err != nil {
			return nil, err
		}
	}
	removedAssets := removedIDs(current.Assets, assets)
	if len(removedAssets) > 0 {
		if _, err := tx.ExecContext(ctx, `
			delete from permission_instances
			where container_id = $1 and asset_id = any($2::int8[])
		`, id, int8Array(removedAssets)); err != nil {
			return nil, err
		}
	}

	updated := *current
	updated.Name = name
	updated.Assets = assets
	updated.Apps = apps
	if _, err := tx.ExecContext(ctx, `
		update containers set name = $2, assets = $3::int8[], apps = $4::int8[] where id = $1
	`, id, name, int8Array(assets), int8Array(apps)); err != nil {
		return nil, mapPgError(err)
	}
	if err := s.syncBookkeepingAsset(ctx, tx, id, name); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteContainers removes the containers, the grants scoped to them and
// their bookkeeping assets.
func (s *Store) DeleteContainers(ctx context.Context, ids []int64) error {
	ids = dedupe(ids)
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "containers", ids); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`delete from permission_instances where container_id = any($1::int8[])`, int8Array(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		bookID, ok, err := s.bookkeepingAssetID(ctx, tx, id)
		if err != nil {
			return err
		}
		if ok {
			if err := deleteAssetCascade(ctx, tx, bookID); err != nil {
				return err
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `delete from containers where id = any($1::int8[])`, int8Array(ids)); err != nil {
		return err
	}
	return tx.Commit()
}

// bookkeepingAssetID finds the asset of the bootstrap type mirroring the
// container.
func (s *Store) bookkeepingAssetID(ctx context.Context, tx *sql.Tx, containerID int64) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		select id from assets
		where type_id = $1 and (fields->>$2)::int8 = $3
	`, s.boot.AssetTypeID, directory.ContainerAssetFieldID, containerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Store) syncBookkeepingAsset(ctx context.Context, tx *sql.Tx, containerID int64, name string) error {
	bookID, ok, err := s.bookkeepingAssetID(ctx, tx, containerID)
	if err != nil || !ok {
		return err
	}
	nameJSON, err := marshalJSON(name)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		update assets
		set name = $2, fields = jsonb_set(fields, array[$3], $4::jsonb)
		where id = $1
	`, bookID, fmt.Sprintf("%d - %s", containerID, name), directory.ContainerAssetFieldName, nameJSON)
	return err
}

func removedIDs(old, updated []int64) []int64 {
	keep := make(map[int64]struct{}, len(updated))
	for _, id := range updated {
		keep[id] = struct{}{}
	}
	var out []int64
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return dedupe(out)
}
