package pg

import (
	"context"
	"database/sql"

	"sigauth.org/internal/directory"
)

// ReadView runs fn against a read-only repeatable-read transaction so every
// query inside observes one snapshot of the graph.
func (s *Store) ReadView(ctx context.Context, fn func(context.Context, directory.View) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, txView{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txView struct {
	tx *sql.Tx
}

var _ directory.View = txView{}

func (v txView) Accounts(ctx context.Context) ([]directory.Account, error) {
	return v.accounts(ctx, `select `+accountColumns+` from accounts order by id`)
}

func (v txView) AccountsByIDs(ctx context.Context, ids []int64) ([]directory.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.accounts(ctx,
		`select `+accountColumns+` from accounts where id = any($1::int8[]) order by id`, int8Array(ids))
}

func (v txView) accounts(ctx context.Context, query string, args ...any) ([]directory.Account, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (v txView) Apps(ctx context.Context) ([]directory.App, error) {
	return v.apps(ctx, `select `+appColumns+` from apps order by id`)
}

func (v txView) AppsByIDs(ctx context.Context, ids []int64) ([]directory.App, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.apps(ctx,
		`select `+appColumns+` from apps where id = any($1::int8[]) order by id`, int8Array(ids))
}

func (v txView) apps(ctx context.Context, query string, args ...any) ([]directory.App, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (v txView) Containers(ctx context.Context) ([]directory.Container, error) {
	return v.containers(ctx, `select `+containerColumns+` from containers order by id`)
}

func (v txView) ContainersByIDs(ctx context.Context, ids []int64) ([]directory.Container, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.containers(ctx,
		`select `+containerColumns+` from containers where id = any($1::int8[]) order by id`, int8Array(ids))
}

func (v txView) containers(ctx context.Context, query string, args ...any) ([]directory.Container, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (v txView) Assets(ctx context.Context) ([]directory.Asset, error) {
	return v.assets(ctx, `select `+assetColumns+` from assets order by id`)
}

func (v txView) AssetsByIDs(ctx context.Context, ids []int64) ([]directory.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.assets(ctx,
		`select `+assetColumns+` from assets where id = any($1::int8[]) order by id`, int8Array(ids))
}

func (v txView) assets(ctx context.Context, query string, args ...any) ([]directory.Asset, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (v txView) AssetTypes(ctx context.Context) ([]directory.AssetType, error) {
	return v.assetTypes(ctx, `select `+assetTypeColumns+` from asset_types order by id`)
}

func (v txView) AssetTypesByIDs(ctx context.Context, ids []int64) ([]directory.AssetType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.assetTypes(ctx,
		`select `+assetTypeColumns+` from asset_types where id = any($1::int8[]) order by id`, int8Array(ids))
}

func (v txView) assetTypes(ctx context.Context, query string, args ...any) ([]directory.AssetType, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.AssetType
	for rows.Next() {
		t, err := scanAssetType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (v txView) GrantsByAccounts(ctx context.Context, accountIDs []int64) ([]directory.PermissionInstance, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	return v.grants(ctx,
		`select `+grantColumns+` from permission_instances where account_id = any($1::int8[]) order by id`,
		int8Array(accountIDs))
}

func (v txView) GrantsByContainers(ctx context.Context, containerIDs []int64) ([]directory.PermissionInstance, error) {
	if len(containerIDs) == 0 {
		return nil, nil
	}
	return v.grants(ctx,
		`select `+grantColumns+` from permission_instances where container_id = any($1::int8[]) order by id`,
		int8Array(containerIDs))
}

func (v txView) grants(ctx context.Context, query string, args ...any) ([]directory.PermissionInstance, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.PermissionInstance
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
