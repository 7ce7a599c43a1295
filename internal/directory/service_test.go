package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type stubFetcher struct {
	catalog AppPermission
	err     error
	fetched []string
	nudged  []string
}

func (f *stubFetcher) FetchPermissions(ctx context.Context, url string) (AppPermission, error) {
	f.fetched = append(f.fetched, url)
	if f.err != nil {
		return AppPermission{}, f.err
	}
	return f.catalog, nil
}

func (f *stubFetcher) Nudge(ctx context.Context, url string) {
	f.nudged = append(f.nudged, url)
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *Memory) {
	t.Helper()
	m := NewMemory(DefaultBootstrap())
	base := []ServiceOption{WithTokenGenerator(func(length int) string {
		return strings.Repeat("t", length)
	})}
	s, err := NewService(m, DefaultBootstrap(), append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return s, m
}

func TestServiceCreateAccountValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateAccount(ctx, "", "a@b.c", "hash"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := s.CreateAccount(ctx, "alice", "not-an-email", "hash"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
	acc, err := s.CreateAccount(ctx, " alice ", " ALICE@Example.com ", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Name != "alice" || acc.Email != "alice@example.com" {
		t.Fatalf("normalization failed: %+v", acc)
	}
}

func TestServiceCreateAppGeneratesToken(t *testing.T) {
	s, _ := newTestService(t)
	app, err := s.CreateApp(context.Background(), AppCreate{
		Name:        "CRM",
		Permissions: AppPermission{Root: []string{"Administer"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(app.Token) != 64 {
		t.Fatalf("token length = %d", len(app.Token))
	}
}

func TestServiceCreateAppWebFetchReplacesCatalog(t *testing.T) {
	fetcher := &stubFetcher{catalog: AppPermission{Root: []string{"Remote"}}}
	s, _ := newTestService(t, WithCatalogFetcher(fetcher))

	app, err := s.CreateApp(context.Background(), AppCreate{
		Name:            "CRM",
		URL:             "https://crm.example.com",
		Permissions:     AppPermission{Root: []string{"Ignored"}},
		WebFetchEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(app.Permissions.Root) != 1 || app.Permissions.Root[0] != "Remote" {
		t.Fatalf("declared catalog not replaced: %+v", app.Permissions)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "https://crm.example.com" {
		t.Fatalf("fetch calls = %v", fetcher.fetched)
	}
}

func TestServiceCreateAppFetchFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{err: fmt.Errorf("%w: unreachable", ErrTimeout)}
	s, _ := newTestService(t, WithCatalogFetcher(fetcher))

	_, err := s.CreateApp(context.Background(), AppCreate{
		Name:            "CRM",
		URL:             "https://crm.example.com",
		WebFetchEnabled: true,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestServiceEditAppNudgeAndFetchBookkeeping(t *testing.T) {
	fetcher := &stubFetcher{catalog: AppPermission{Root: []string{"Remote"}}}
	s, _ := newTestService(t, WithCatalogFetcher(fetcher))
	ctx := context.Background()

	app, err := s.CreateApp(ctx, AppCreate{
		Name:        "CRM",
		URL:         "https://crm.example.com",
		Permissions: AppPermission{Root: []string{"Administer"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.EditApp(ctx, app.ID, AppEdit{
		Name:            "CRM",
		URL:             app.URL,
		WebFetchEnabled: true,
		Nudge:           true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fetcher.nudged) != 1 {
		t.Fatalf("nudge calls = %v", fetcher.nudged)
	}
	if out.WebFetch.LastFetch == 0 || !out.WebFetch.Success {
		t.Fatalf("fetch bookkeeping = %+v", out.WebFetch)
	}
	if len(out.Permissions.Root) != 1 || out.Permissions.Root[0] != "Remote" {
		t.Fatalf("catalog not replaced on edit: %+v", out.Permissions)
	}
}

func TestServiceProtectedEntities(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	boot := DefaultBootstrap()

	if _, err := s.EditApp(ctx, boot.AppID, AppEdit{Name: "X"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("edit bootstrap app: %v", err)
	}
	if err := s.DeleteApps(ctx, []int64{boot.AppID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("delete bootstrap app: %v", err)
	}
	if _, err := s.EditContainer(ctx, boot.ContainerID, "X", nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("edit bootstrap container: %v", err)
	}
	if err := s.DeleteContainers(ctx, []int64{boot.ContainerID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("delete bootstrap container: %v", err)
	}
	if _, err := s.EditAssetType(ctx, boot.AssetTypeID, "X", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("edit bootstrap asset type: %v", err)
	}
	if err := s.DeleteAssetTypes(ctx, []int64{boot.AssetTypeID}); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete bootstrap asset type: %v", err)
	}
	if _, _, err := s.CreateContainer(ctx, "Sales", nil, []int64{boot.AppID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bootstrap app in container: %v", err)
	}
	if _, err := s.UpsertAsset(ctx, AssetUpsert{Name: "X", TypeID: boot.AssetTypeID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("asset of bootstrap type: %v", err)
	}
}

func TestServiceCreateAssetTypeRenumbersFields(t *testing.T) {
	s, _ := newTestService(t)
	typ, err := s.CreateAssetType(context.Background(), "Document", []AssetTypeField{
		{ID: 42, Type: FieldText, Name: "Title", Required: true},
		{ID: 7, Type: FieldNumber, Name: "Pages"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if typ.Fields[0].ID != 0 || typ.Fields[1].ID != 1 {
		t.Fatalf("fields not renumbered: %v", typ.Fields)
	}
}

func TestServiceSetPermissionsNormalizesIdentifiers(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, m, "alice", "alice@example.com")
	app := mustApp(t, m, "crm", AppPermission{Root: []string{"Manage Users"}})

	grants, err := s.SetPermissions(ctx, acc.ID, []Grant{
		{AppID: app.ID, Identifier: "Manage Users"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].Identifier != "manage-users" {
		t.Fatalf("grants = %v", grants)
	}
}

func TestServiceVisibilityRootSeesEverything(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()
	boot := DefaultBootstrap()

	root := mustAccount(t, m, "root", "root@example.com")
	mustAccount(t, m, "bystander", "by@example.com")
	mustApp(t, m, "crm", AppPermission{Root: []string{"Administer"}})

	grants, err := s.SetPermissions(ctx, root.ID, []Grant{
		{AppID: boot.AppID, Identifier: RootPermissionName},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := s.Visibility(ctx, *root, grants)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Accounts) != 2 {
		t.Fatalf("root sees %d accounts", len(snap.Accounts))
	}
	if len(snap.Apps) != 2 {
		t.Fatalf("root sees %d apps", len(snap.Apps))
	}
	if len(snap.Containers) != 1 {
		t.Fatalf("root sees %d containers", len(snap.Containers))
	}
}

func TestServiceVisibilityScopedSubset(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()

	alice := mustAccount(t, m, "alice", "alice@example.com")
	bob := mustAccount(t, m, "bob", "bob@example.com")
	mustAccount(t, m, "carol", "carol@example.com")

	app := mustApp(t, m, "crm", AppPermission{Container: []string{"Manage"}})
	hidden := mustApp(t, m, "billing", AppPermission{Root: []string{"Administer"}})

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
	c, _, err := m.CreateContainer(ctx, "Sales", []int64{asset.ID}, []int64{app.ID})
	if err != nil {
		t.Fatal(err)
	}
	other, _, err := m.CreateContainer(ctx, "Ops", nil, []int64{app.ID})
	if err != nil {
		t.Fatal(err)
	}

	aliceGrants, err := s.SetPermissions(ctx, alice.ID, []Grant{
		{AppID: app.ID, Identifier: "manage", ContainerID: &c.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Bob shares the container scope; carol does not.
	if _, err := s.SetPermissions(ctx, bob.ID, []Grant{
		{AppID: app.ID, Identifier: "manage", ContainerID: &c.ID},
	}); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Visibility(ctx, *alice, aliceGrants)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Apps) != 1 || snap.Apps[0].ID != app.ID {
		t.Fatalf("apps = %v", snap.Apps)
	}
	for _, a := range snap.Apps {
		if a.ID == hidden.ID {
			t.Fatal("unreferenced app visible")
		}
	}
	if len(snap.Containers) != 1 || snap.Containers[0].ID != c.ID {
		t.Fatalf("containers = %v (other container %d must stay hidden)", snap.Containers, other.ID)
	}
	if len(snap.Assets) != 1 || snap.Assets[0].ID != asset.ID {
		t.Fatalf("assets = %v", snap.Assets)
	}
	if len(snap.AssetTypes) != 1 || snap.AssetTypes[0].ID != typ.ID {
		t.Fatalf("asset types = %v", snap.AssetTypes)
	}
	if len(snap.Accounts) != 2 {
		t.Fatalf("accounts = %v (alice and bob share the scope, carol does not)", snap.Accounts)
	}
	if len(snap.Grants[alice.ID]) != 1 || len(snap.Grants[bob.ID]) != 1 {
		t.Fatalf("grants map = %v", snap.Grants)
	}
}
