package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"sigauth.org/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, directory.DefaultBootstrap()), mock
}

func appRow(id int64, name, permissions string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "url", "token", "oidc_auth_code_url", "permissions",
		"web_fetch_enabled", "web_fetch_last", "web_fetch_success", "created",
	}).AddRow(id, name, "", "token", nil, []byte(permissions), false, int64(0), false, int64(1))
}

func TestCreateAccountConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("insert into accounts").
		WithArgs("alice", "alice@example.com", "hash", int64(1)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_name_key"})

	err := s.CreateAccount(context.Background(), &directory.Account{
		Name: "alice", Email: "alice@example.com", PasswordHash: "hash", Created: 1,
	})
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountBuildsDynamicSet(t *testing.T) {
	s, mock := newMockStore(t)

	name := "alice2"
	token := ""
	mock.ExpectExec("update accounts set").
		WithArgs(name, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select id, name, email").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "email", "password_hash", "api_token", "second_factor", "created",
		}).AddRow(int64(7), name, "alice@example.com", "hash", nil, nil, int64(1)))

	out, err := s.UpdateAccount(context.Background(), 7, directory.AccountUpdate{
		Name:     &name,
		APIToken: &token,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "alice2" || out.APIToken != "" {
		t.Fatalf("updated account = %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	name := "ghost"
	mock.ExpectExec("update accounts set").
		WithArgs(name, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdateAccount(context.Background(), 99, directory.AccountUpdate{Name: &name})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAccountsAllOrNothing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select count").
		WithArgs("{5,6}").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.DeleteAccounts(context.Background(), []int64{5, 6})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceGrantsExecutesPlan(t *testing.T) {
	s, mock := newMockStore(t)

	catalog := `{"asset": [], "container": [], "root": ["Administer", "Audit"]}`

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from accounts").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("from permission_instances").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "app_id", "identifier", "container_id", "asset_id",
		}).AddRow(int64(1), int64(5), int64(10), "administer", nil, nil))
	mock.ExpectQuery("from apps").
		WithArgs("{10}").
		WillReturnRows(appRow(10, "crm", catalog))
	mock.ExpectExec("delete from permission_instances").
		WithArgs("{1}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("insert into permission_instances").
		WithArgs(int64(5), int64(10), "audit", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	final, err := s.ReplaceGrants(context.Background(), 5, []directory.Grant{
		{AppID: 10, Identifier: "Audit"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(final) != 1 || final[0].ID != 2 || final[0].Identifier != "audit" {
		t.Fatalf("final grants = %v", final)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceGrantsUnknownAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from accounts").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	_, err := s.ReplaceGrants(context.Background(), 99, nil)
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAppCatalogNarrowingDeletesGrants(t *testing.T) {
	s, mock := newMockStore(t)

	oldCatalog := `{"asset": [], "container": [], "root": ["Administer", "Audit"]}`

	mock.ExpectBegin()
	mock.ExpectQuery("from apps").
		WithArgs(int64(10)).
		WillReturnRows(appRow(10, "crm", oldCatalog))
	mock.ExpectExec("delete from permission_instances").
		WithArgs(int64(10), "{audit}").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("update apps").
		WithArgs(int64(10), "crm", "", sqlmock.AnyArg(), sqlmock.AnyArg(), false, int64(0), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := s.UpdateApp(context.Background(), 10, directory.AppUpdate{
		Name:        "crm",
		Permissions: directory.AppPermission{Root: []string{"Administer"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Permissions.Root) != 1 {
		t.Fatalf("updated catalog = %+v", out.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteAppsPrunesContainerMembership(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select count").
		WithArgs("{10}").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("update containers set apps = array_remove").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from apps").
		WithArgs("{10}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.DeleteApps(context.Background(), []int64{10}); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("delete from sessions").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteSession(context.Background(), "ghost"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpiredSessionsCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("delete from sessions where expire").
		WithArgs(int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteExpiredSessions(context.Background(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("purged %d", n)
	}
}

func TestInt8ArrayCodec(t *testing.T) {
	if got := int8Array(nil); got != "{}" {
		t.Fatalf("empty array literal = %q", got)
	}
	if got := int8Array([]int64{1, 2, 3}); got != "{1,2,3}" {
		t.Fatalf("array literal = %q", got)
	}
	ids, err := parseInt8Array([]byte("{1,2,3}"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("parsed = %v", ids)
	}
	empty, err := parseInt8Array([]byte("{}"))
	if err != nil || empty != nil {
		t.Fatalf("empty parse = %v %v", empty, err)
	}
}
