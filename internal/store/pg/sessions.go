package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sigauth.org/internal/directory"
)

func (s *Store) CreateSession(ctx context.Context, sess *directory.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, refresh_token, account_id, created, expire)
		values ($1, $2, $3, $4, $5)
	`, sess.ID, sess.RefreshToken, sess.AccountID, sess.Created, sess.Expire)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (*directory.Session, error) {
	var sess directory.Session
	err := s.db.QueryRowContext(ctx, `
		select id, refresh_token, account_id, created, expire
		from sessions where id = $1
	`, id).Scan(&sess.ID, &sess.RefreshToken, &sess.AccountID, &sess.Created, &sess.Expire)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session", directory.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: session", directory.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expire <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
