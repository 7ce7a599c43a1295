package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sigauth.org/internal/directory"
)

const accountColumns = `id, name, email, password_hash, api_token, second_factor, created`

func scanAccount(row interface{ Scan(...any) error }) (*directory.Account, error) {
	var (
		a            directory.Account
		apiToken     sql.NullString
		secondFactor sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &apiToken, &secondFactor, &a.Created); err != nil {
		return nil, err
	}
	a.APIToken = apiToken.String
	a.SecondFactor = secondFactor.String
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *directory.Account) error {
	err := s.db.QueryRowContext(ctx, `
		insert into accounts (name, email, password_hash, created)
		values ($1, $2, $3, $4)
		returning id
	`, a.Name, a.Email, a.PasswordHash, a.Created).Scan(&a.ID)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (*directory.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", directory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) AccountByName(ctx context.Context, name string) (*directory.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %q", directory.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id int64, upd directory.AccountUpdate) (*directory.Account, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if upd.APIToken != nil {
		set("api_token", nullIfEmpty(*upd.APIToken))
	}
	if upd.SecondFactor != nil {
		set("second_factor", nullIfEmpty(*upd.SecondFactor))
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update accounts set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, mapPgError(err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, fmt.Errorf("%w: account %d", directory.ErrNotFound, id)
		}
	}
	return s.AccountByID(ctx, id)
}

// DeleteAccounts removes the accounts; grants and sessions go with them via
// foreign key cascade.
func (s *Store) DeleteAccounts(ctx context.Context, ids []int64) error {
	ids = dedupe(ids)
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireAll(ctx, tx, "accounts", ids); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from accounts where id = any($1::int8[])`, int8Array(ids)); err != nil {
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// requireAll fails with ErrNotFound unless every id has a row in the table.
func requireAll(ctx context.Context, tx *sql.Tx, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var count int
	query := fmt.Sprintf(`select count(*) from %s where id = any($1::int8[])`, table)
	if err := tx.QueryRowContext(ctx, query, int8Array(ids)).Scan(&count); err != nil {
		return err
	}
	if count != len(ids) {
		return fmt.Errorf("%w: %d of %d ids in %s", directory.ErrNotFound, len(ids)-count, len(ids), table)
	}
	return nil
}
