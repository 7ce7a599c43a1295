package directory

import "context"

// AccountUpdate carries optional account field changes.
type AccountUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	APIToken     *string
	SecondFactor *string
}

// AppUpdate carries the full replacement state of an app edit. Catalog
// narrowing cascades to grant deletion inside the store. FetchedAt is
// nonzero when a successful remote catalog fetch happened during this edit;
// otherwise the previous fetch bookkeeping is preserved.
type AppUpdate struct {
	Name            string
	URL             string
	OIDCAuthCodeURL string
	Permissions     AppPermission
	WebFetchEnabled bool
	FetchedAt       int64
}

// AssetUpsert describes a create-or-update of an asset. TypeID is ignored on
// update (an asset never changes its type). Internal marks bookkeeping writes
// that may target the protected asset type.
type AssetUpsert struct {
	ID       *int64
	Name     string
	TypeID   int64
	Fields   FieldValues
	Internal bool
}

// View is a read-only, transactionally consistent view of the entity graph.
type View interface {
	Accounts(ctx context.Context) ([]Account, error)
	AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error)
	Apps(ctx context.Context) ([]App, error)
	AppsByIDs(ctx context.Context, ids []int64) ([]App, error)
	Containers(ctx context.Context) ([]Container, error)
	ContainersByIDs(ctx context.Context, ids []int64) ([]Container, error)
	Assets(ctx context.Context) ([]Asset, error)
	AssetsByIDs(ctx context.Context, ids []int64) ([]Asset, error)
	AssetTypes(ctx context.Context) ([]AssetType, error)
	AssetTypesByIDs(ctx context.Context, ids []int64) ([]AssetType, error)
	GrantsByAccounts(ctx context.Context, accountIDs []int64) ([]PermissionInstance, error)
	GrantsByContainers(ctx context.Context, containerIDs []int64) ([]PermissionInstance, error)
}

// Store is the persistence boundary of the directory. Every mutating method
// executes as a single serializable transaction: validation reads and the
// writes they guard observe one snapshot, and a failed validation leaves no
// partial state behind.
type Store interface {
	// Accounts and grants.
	CreateAccount(ctx context.Context, a *Account) error
	AccountByID(ctx context.Context, id int64) (*Account, error)
	AccountByName(ctx context.Context, name string) (*Account, error)
	UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (*Account, error)
	DeleteAccounts(ctx context.Context, ids []int64) error
	// ReplaceGrants validates requested grants against the graph and swaps the
	// account's grant set all-or-nothing, serialized per account.
	ReplaceGrants(ctx context.Context, accountID int64, requested []Grant) ([]PermissionInstance, error)
	GrantsByAccount(ctx context.Context, accountID int64) ([]PermissionInstance, error)

	// Apps.
	CreateApp(ctx context.Context, a *App) error
	AppByID(ctx context.Context, id int64) (*App, error)
	AppByToken(ctx context.Context, token string) (*App, error)
	UpdateApp(ctx context.Context, id int64, upd AppUpdate) (*App, error)
	DeleteApps(ctx context.Context, ids []int64) error

	// Containers. CreateContainer also creates the bookkeeping asset and links
	// it into the bootstrap container.
	CreateContainer(ctx context.Context, name string, assets, apps []int64) (*Container, *Asset, error)
	ContainerByID(ctx context.Context, id int64) (*Container, error)
	UpdateContainer(ctx context.Context, id int64, name string, assets, apps []int64) (*Container, error)
	DeleteContainers(ctx context.Context, ids []int64) error

	// Assets.
	UpsertAsset(ctx context.Context, req AssetUpsert) (*Asset, error)
	AssetByID(ctx context.Context, id int64) (*Asset, error)
	DeleteAssets(ctx context.Context, ids []int64) error

	// Asset types. UpdateAssetType migrates every asset of the type in the
	// same transaction as the schema change.
	CreateAssetType(ctx context.Context, name string, fields []AssetTypeField) (*AssetType, error)
	AssetTypeByID(ctx context.Context, id int64) (*AssetType, error)
	UpdateAssetType(ctx context.Context, id int64, name string, fields []AssetTypeField) (*AssetType, error)
	DeleteAssetTypes(ctx context.Context, ids []int64) error

	// Sessions.
	CreateSession(ctx context.Context, s *Session) error
	SessionByID(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)

	// ReadView runs fn against one consistent read snapshot.
	ReadView(ctx context.Context, fn func(context.Context, View) error) error
}
