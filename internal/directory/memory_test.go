package directory

import (
	"context"
	"errors"
	"testing"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	return NewMemory(DefaultBootstrap())
}

func mustAccount(t *testing.T, m *Memory, name, email string) *Account {
	t.Helper()
	a := &Account{Name: name, Email: email, PasswordHash: "x", Created: 1}
	if err := m.CreateAccount(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func mustApp(t *testing.T, m *Memory, name string, perms AppPermission) *App {
	t.Helper()
	a := &App{Name: name, Token: name + "-token", Permissions: perms, Created: 1}
	if err := m.CreateApp(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestMemorySeedsBootstrapEntities(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	boot := DefaultBootstrap()

	app, err := m.AppByID(ctx, boot.AppID)
	if err != nil {
		t.Fatal(err)
	}
	if len(app.Permissions.Root) != 1 || app.Permissions.Root[0] != RootPermissionName {
		t.Fatalf("bootstrap app catalog = %+v", app.Permissions)
	}
	if len(app.Token) != 64 {
		t.Fatalf("bootstrap app token length = %d", len(app.Token))
	}
	if _, err := m.ContainerByID(ctx, boot.ContainerID); err != nil {
		t.Fatal(err)
	}
	typ, err := m.AssetTypeByID(ctx, boot.AssetTypeID)
	if err != nil {
		t.Fatal(err)
	}
	if len(typ.Fields) != 2 {
		t.Fatalf("bootstrap asset type fields = %v", typ.Fields)
	}
}

func TestMemoryAccountUniqueness(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustAccount(t, m, "alice", "alice@example.com")

	err := m.CreateAccount(ctx, &Account{Name: "alice", Email: "other@example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: got %v", err)
	}
	err = m.CreateAccount(ctx, &Account{Name: "bob", Email: "alice@example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: got %v", err)
	}
}

func TestMemoryDeleteAccountCascadesGrantsAndSessions(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	boot := DefaultBootstrap()
	acc := mustAccount(t, m, "alice", "alice@example.com")

	if _, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: boot.AppID, Identifier: "root"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession(ctx, &Session{ID: "s1", RefreshToken: "r1", AccountID: acc.ID, Expire: 99}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteAccounts(ctx, []int64{acc.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SessionByID(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session survived account deletion: %v", err)
	}
	if _, err := m.GrantsByAccount(ctx, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected account gone, got %v", err)
	}
}

func TestMemoryReplaceGrantsRepeatedTupleIsIdempotent(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	boot := DefaultBootstrap()
	acc := mustAccount(t, m, "alice", "alice@example.com")

	if _, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: boot.AppID, Identifier: "root"},
	}); err != nil {
		t.Fatal(err)
	}
	final, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: boot.AppID, Identifier: "root"},
		{AppID: boot.AppID, Identifier: "root"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(final) != 1 {
		t.Fatalf("final grants = %v", final)
	}
}

func TestMemoryDeleteAccountsAllOrNothing(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")

	if err := m.DeleteAccounts(ctx, []int64{acc.ID, 999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.AccountByID(ctx, acc.ID); err != nil {
		t.Fatalf("account deleted despite failed bulk: %v", err)
	}
}

func TestMemoryUpdateAppNarrowingDeletesGrants(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")
	app := mustApp(t, m, "crm", AppPermission{Root: []string{"Administer", "Audit"}})

	if _, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: app.ID, Identifier: "administer"},
		{AppID: app.ID, Identifier: "audit"},
	}); err != nil {
		t.Fatal(err)
	}

	_, err := m.UpdateApp(ctx, app.ID, AppUpdate{
		Name:        "crm",
		Permissions: AppPermission{Root: []string{"Administer"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	grants, err := m.GrantsByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].Identifier != "administer" {
		t.Fatalf("grants after narrowing = %v", grants)
	}
}

func TestMemoryUpdateAppFetchBookkeeping(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	app := mustApp(t, m, "crm", AppPermission{Root: []string{"Administer"}})

	out, err := m.UpdateApp(ctx, app.ID, AppUpdate{
		Name:            "crm",
		Permissions:     app.Permissions,
		WebFetchEnabled: true,
		FetchedAt:       1234,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.WebFetch.Enabled || out.WebFetch.LastFetch != 1234 || !out.WebFetch.Success {
		t.Fatalf("fetch bookkeeping = %+v", out.WebFetch)
	}

	// A later edit without a fetch preserves the bookkeeping.
	out, err = m.UpdateApp(ctx, app.ID, AppUpdate{Name: "crm", Permissions: app.Permissions})
	if err != nil {
		t.Fatal(err)
	}
	if out.WebFetch.LastFetch != 1234 || !out.WebFetch.Success {
		t.Fatalf("fetch bookkeeping lost on plain edit: %+v", out.WebFetch)
	}
}

func TestMemoryDeleteAppsPrunesMembershipAndGrants(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")
	app := mustApp(t, m, "crm", AppPermission{
		Root:      []string{"Administer"},
		Container: []string{"Manage"},
	})
	c, _, err := m.CreateContainer(ctx, "Sales", nil, []int64{app.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: app.ID, Identifier: "manage", ContainerID: &c.ID},
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteApps(ctx, []int64{app.ID}); err != nil {
		t.Fatal(err)
	}
	grants, err := m.GrantsByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("grants survived app deletion: %v", grants)
	}
	updated, err := m.ContainerByID(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Apps) != 0 {
		t.Fatalf("container still lists the deleted app: %v", updated.Apps)
	}
}

func TestMemoryCreateContainerBookkeeping(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	boot := DefaultBootstrap()

	c, book, err := m.CreateContainer(ctx, "Sales", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if book.TypeID != boot.AssetTypeID {
		t.Fatalf("bookkeeping asset type = %d", book.TypeID)
	}
	if book.Name != "2 - Sales" {
		t.Fatalf("bookkeeping asset name = %q", book.Name)
	}
	if book.Fields[ContainerAssetFieldID] != float64(c.ID) || book.Fields[ContainerAssetFieldName] != "Sales" {
		t.Fatalf("bookkeeping fields = %v", book.Fields)
	}
	home, err := m.ContainerByID(ctx, boot.ContainerID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range home.Assets {
		if id == book.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("bookkeeping asset not linked into the bootstrap container: %v", home.Assets)
	}
}

func TestMemoryUpdateContainerRenamesBookkeepingAsset(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	c, book, err := m.CreateContainer(ctx, "Sales", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateContainer(ctx, c.ID, "Marketing", nil, nil); err != nil {
		t.Fatal(err)
	}
	renamed, err := m.AssetByID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "2 - Marketing" || renamed.Fields[ContainerAssetFieldName] != "Marketing" {
		t.Fatalf("bookkeeping asset not synced: %q %v", renamed.Name, renamed.Fields)
	}
}

func TestMemoryUpdateContainerRemovalCascadesGrants(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")
	app := mustApp(t, m, "crm", AppPermission{
		Container: []string{"Manage"},
		Asset:     []string{"Read"},
	})
	typ, err := m.CreateAssetType(ctx, "Document", []AssetTypeField{
		{ID: 0, Type: FieldText, Name: "Title", Required: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	asset, err := m.UpsertAsset(ctx, AssetUpsert{
		Name: "Q1 Report", TypeID: typ.ID, Fields: FieldValues{"0": "Q1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	c, _, err := m.CreateContainer(ctx, "Sales", []int64{asset.ID}, []int64{app.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ReplaceGrants(ctx, acc.ID, []Grant{
		{AppID: app.ID, Identifier: "manage", ContainerID: &c.ID},
		{AppID: app.ID, Identifier: "read", ContainerID: &c.ID, AssetID: &asset.ID},
	}); err != nil {
		t.Fatal(err)
	}

	// Removing the asset from the container invalidates only the asset grant.
	if _, err := m.UpdateContainer(ctx, c.ID, "Sales", nil, []int64{app.ID}); err != nil {
		t.Fatal(err)
	}
	grants, err := m.GrantsByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].Identifier != "manage" {
		t.Fatalf("grants after asset removal = %v", grants)
	}

	// Removing the app invalidates the remaining container grant.
	if _, err := m.UpdateContainer(ctx, c.ID, "Sales", nil, nil); err != nil {
		t.Fatal(err)
	}
	grants, err = m.GrantsByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("grants after app removal = %v", grants)
	}
}

func TestMemoryDeleteContainerRemovesBookkeepingAsset(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	boot := DefaultBootstrap()

	c, book, err := m.CreateContainer(ctx, "Sales", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteContainers(ctx, []int64{c.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AssetByID(ctx, book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bookkeeping asset survived: %v", err)
	}
	home, err := m.ContainerByID(ctx, boot.ContainerID)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range home.Assets {
		if id == book.ID {
			t.Fatal("bootstrap container still links the deleted bookkeeping asset")
		}
	}
}

func TestMemoryUpdateAssetTypeMigratesAssets(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	typ, err := m.CreateAssetType(ctx, "Document", []AssetTypeField{
		{ID: 0, Type: FieldText, Name: "Title", Required: true},
		{ID: 1, Type: FieldText, Name: "Notes"},
	})
	if err != nil {
		t.Fatal(err)
	}
	asset, err := m.UpsertAsset(ctx, AssetUpsert{
		Name: "Q1", TypeID: typ.ID, Fields: FieldValues{"0": "Q1", "1": "draft"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.UpdateAssetType(ctx, typ.ID, "Document", []AssetTypeField{
		{ID: 0, Type: FieldText, Name: "Title", Required: true},
		{ID: -1, Type: FieldNumber, Name: "Pages", Required: true},
	}); err != nil {
		t.Fatal(err)
	}

	migrated, err := m.AssetByID(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := migrated.Fields["1"]; ok {
		t.Fatalf("removed field survived: %v", migrated.Fields)
	}
	if migrated.Fields["2"] != float64(0) {
		t.Fatalf("new required number field not backfilled: %v", migrated.Fields)
	}
}

func TestMemoryDeleteAssetTypeCascadesAssets(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	typ, err := m.CreateAssetType(ctx, "Document", []AssetTypeField{
		{ID: 0, Type: FieldText, Name: "Title", Required: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	asset, err := m.UpsertAsset(ctx, AssetUpsert{
		Name: "Q1", TypeID: typ.ID, Fields: FieldValues{"0": "Q1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	c, _, err := m.CreateContainer(ctx, "Sales", []int64{asset.ID}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteAssetTypes(ctx, []int64{typ.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AssetByID(ctx, asset.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("asset survived type deletion: %v", err)
	}
	updated, err := m.ContainerByID(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Assets) != 0 {
		t.Fatalf("container still lists the cascaded asset: %v", updated.Assets)
	}
}

func TestMemoryUpsertAssetValidatesFields(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	typ, err := m.CreateAssetType(ctx, "Document", []AssetTypeField{
		{ID: 0, Type: FieldText, Name: "Title", Required: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.UpsertAsset(ctx, AssetUpsert{Name: "Q1", TypeID: typ.ID, Fields: FieldValues{}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing required field: got %v", err)
	}
}

func TestMemoryDeleteExpiredSessions(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")

	_ = m.CreateSession(ctx, &Session{ID: "old", RefreshToken: "r", AccountID: acc.ID, Expire: 10})
	_ = m.CreateSession(ctx, &Session{ID: "new", RefreshToken: "r", AccountID: acc.ID, Expire: 100})

	n, err := m.DeleteExpiredSessions(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d sessions", n)
	}
	if _, err := m.SessionByID(ctx, "new"); err != nil {
		t.Fatalf("live session purged: %v", err)
	}
}
