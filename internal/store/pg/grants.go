package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sigauth.org/internal/directory"
)

const grantColumns = `id, account_id, app_id, identifier, container_id, asset_id`

func scanGrant(row interface{ Scan(...any) error }) (directory.PermissionInstance, error) {
	var (
		g           directory.PermissionInstance
		containerID sql.NullInt64
		assetID     sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.AccountID, &g.AppID, &g.Identifier, &containerID, &assetID); err != nil {
		return directory.PermissionInstance{}, err
	}
	if containerID.Valid {
		g.ContainerID = &containerID.Int64
	}
	if assetID.Valid {
		g.AssetID = &assetID.Int64
	}
	return g, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func grantsOf(ctx context.Context, q querier, accountID int64) ([]directory.PermissionInstance, error) {
	rows, err := q.QueryContext(ctx, `
		select `+grantColumns+`
		from permission_instances
		where account_id = $1
		order by id
	`, accountID)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceGrants validates the requested set inside one serializable
// transaction and swaps the account's grants all-or-nothing. The account row
// is locked, so concurrent replacements for one account serialize.
func (s *Store) ReplaceGrants(ctx context.Context, accountID int64, requested []directory.Grant) ([]directory.PermissionInstance, error) {
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `select 1 from accounts where id = $1 for update`, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", directory.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}

	existing, err := grantsOf(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	apps, err := s.referencedApps(ctx, tx, requested)
	if err != nil {
		return nil, err
	}
	containers, err := s.referencedContainers(ctx, tx, requested)
	if err != nil {
		return nil, err
	}

	plan, err := directory.PlanGrantReplacement(existing, requested, apps, containers)
	if err != nil {
		return nil, err
	}

	if len(plan.Delete) > 0 {
		if _, err := tx.ExecContext(ctx,
			`delete from permission_instances where id = any($1::int8[])`, int8Array(plan.Delete)); err != nil {
			return nil, err
		}
	}
	final := append([]directory.PermissionInstance(nil), plan.Keep...)
	for _, g := range plan.Create {
		inst := directory.PermissionInstance{
			AccountID:   accountID,
			AppID:       g.AppID,
			Identifier:  g.Identifier,
			ContainerID: g.ContainerID,
			AssetID:     g.AssetID,
		}
		err := tx.QueryRowContext(ctx, `
			insert into permission_instances (account_id, app_id, identifier, container_id, asset_id)
			values ($1, $2, $3, $4, $5)
			returning id
		`, accountID, g.AppID, g.Identifier, nullableID(g.ContainerID), nullableID(g.AssetID)).Scan(&inst.ID)
		if err != nil {
			return nil, mapPgError(err)
		}
		final = append(final, inst)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return final, nil
}

func (s *Store) GrantsByAccount(ctx context.Context, accountID int64) ([]directory.PermissionInstance, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from accounts where id = $1`, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", directory.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}
	return grantsOf(ctx, s.db, accountID)
}

// referencedApps loads the apps named by the requested grants, keyed by id.
// Unknown ids are simply absent; the planner reports them.
func (s *Store) referencedApps(ctx context.Context, tx *sql.Tx, requested []directory.Grant) (map[int64]directory.App, error) {
	var ids []int64
	for _, g := range requested {
		ids = append(ids, g.AppID)
	}
	ids = dedupe(ids)
	out := make(map[int64]directory.App, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.QueryContext(ctx, `
		select `+appColumns+`
		from apps
		where id = any($1::int8[])
	`, int8Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out[app.ID] = *app
	}
	return out, rows.Err()
}

func (s *Store) referencedContainers(ctx context.Context, tx *sql.Tx, requested []directory.Grant) (map[int64]directory.Container, error) {
	var ids []int64
	for _, g := range requested {
		if g.ContainerID != nil {
			ids = append(ids, *g.ContainerID)
		}
	}
	ids = dedupe(ids)
	out := make(map[int64]directory.Container, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.QueryContext(ctx, `
		select `+containerColumns+`
		from containers
		where id = any($1::int8[])
	`, int8Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = *c
	}
	return out, rows.Err()
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
