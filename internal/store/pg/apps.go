package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sigauth.org/internal/directory"
)

const appColumns = `id, name, url, token, oidc_auth_code_url, permissions, web_fetch_enabled, web_fetch_last, web_fetch_success, created`

func scanApp(row interface{ Scan(...any) error }) (*directory.App, error) {
	var (
		a        directory.App
		oidc     sql.NullString
		rawPerms []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.URL, &a.Token, &oidc, &rawPerms,
		&a.WebFetch.Enabled, &a.WebFetch.LastFetch, &a.WebFetch.Success, &a.Created); err != nil {
		return nil, err
	}
	a.OIDCAuthCodeURL = oidc.String
	if err := unmarshalJSON(rawPerms, &a.Permissions); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateApp(ctx context.Context, a *directory.App) error {
	perms, err := marshalJSON(a.Permissions)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		insert into apps (name, url, token, oidc_auth_code_url, permissions, web_fetch_enabled, web_fetch_last, web_fetch_success, created)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning id
	`, a.Name, a.URL, a.Token, nullIfEmpty(a.OIDCAuthCodeURL), perms,
		a.WebFetch.Enabled, a.WebFetch.LastFetch, a.WebFetch.Success, a.Created).Scan(&a.ID)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Store) AppByID(ctx context.Context, id int64) (*directory.App, error) {
	a, err := scanApp(s.db.QueryRowContext(ctx,
		`select `+appColumns+` from apps where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: app %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) AppByToken(ctx context.Context, token string) (*directory.App, error) {
	a, err := scanApp(s.db.QueryRowContext(ctx,
		`select `+appColumns+` from apps where token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: app token", directory.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateApp replaces the app row. Identifiers dropped from the catalog take
// their grants with them in the same transaction.
func (s *Store) UpdateApp(ctx context.Context, id int64, upd directory.AppUpdate) (*directory.App, error) {
	tx, err := s.serializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanApp(tx.QueryRowContext(ctx,
		`select `+appColumns+` from apps where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: app %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	removed := directory.RemovedIdentifiers(current.Permissions, upd.Permissions)
	if len(removed) > 0 {
		if _, err := tx.ExecContext(ctx, `
			delete from permission_instances
			where app_id = $1 and identifier = any($2::text[])
		`, id, textArray(removed)); err != nil {
			return nil, err
		}
	}

	perms, err := marshalJSON(upd.Permissions)
	if err != nil {
		return nil, err
	}
	updated := *current
	updated.Name = upd.Name
	updated.URL = upd.URL
	updated.OIDCAuthCodeURL = upd.OIDCAuthCodeURL
	updated.Permissions = upd.Permissions
	updated.WebFetch.Enabled = upd.WebFetchEnabled
	if upd.FetchedAt != 0 {
		updated.WebFetch.LastFetch = upd.FetchedAt
		updated.WebFetch.Success = true
	}

	if _, err := tx.ExecContext(ctx, `
		update apps
		set name = $2, url = $3, oidc_auth_code_url = $4, permissions = $5,
		    web_fetch_enabled = $6, web_fetch_last = $7, web_fetch_success = $8
		where id = $1
	`, id, updated.Name, updated.URL, nullIfEmpty(updated.OIDCAuthCodeURL), perms,
		updated.WebFetch.Enabled, updated.WebFetch.LastFetch, updated.WebFetch.Success); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteApps removes the apps, their grants (foreign key cascade) and their
// membership in container app lists.
func (s *Store) DeleteApps(ctx context.Context, ids []int64) error {
	ids = dedupe(ids)
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "apps", ids); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`update containers set apps = array_remove(apps, $1) where apps @> array[$1]::int8[]`, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `delete from apps where id = any($1::int8[])`, int8Array(ids)); err != nil {
		return err
	}
	return tx.Commit()
}
