package directory

// FieldType identifies the runtime type an asset field value must carry.
type FieldType int

const (
	FieldText       FieldType = 1
	FieldNumber     FieldType = 2
	FieldCheckfield FieldType = 3
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	return t == FieldText || t == FieldNumber || t == FieldCheckfield
}

// Account is an identity that can hold permission grants.
// Password hash, API token and second-factor secret never leave the server.
type Account struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	APIToken     string `json:"-"`
	SecondFactor string `json:"-"`
	Created      int64  `json:"created"`
}

// AppPermission is an app's declared permission catalog, partitioned by scope.
type AppPermission struct {
	Asset     []string `json:"asset"`
	Container []string `json:"container"`
	Root      []string `json:"root"`
}

// AppWebFetch records the state of catalog synchronisation from the app's URL.
type AppWebFetch struct {
	Enabled   bool  `json:"enabled"`
	LastFetch int64 `json:"lastFetch"`
	Success   bool  `json:"success"`
}

// App is an external relying party that delegates access checks to the directory.
type App struct {
	ID              int64         `json:"id"`
	Name            string        `json:"name"`
	URL             string        `json:"url"`
	Token           string        `json:"-"`
	OIDCAuthCodeURL string        `json:"oidcAuthCodeUrl,omitempty"`
	Permissions     AppPermission `json:"permissions"`
	WebFetch        AppWebFetch   `json:"webFetch"`
	Created         int64         `json:"created"`
}

// Container groups assets and lists the apps allowed to operate within it.
// Assets and Apps are logical sets; order carries no meaning.
type Container struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Assets  []int64 `json:"assets"`
	Apps    []int64 `json:"apps"`
	Created int64   `json:"created"`
}

// AssetTypeField is a single field definition within an asset type schema.
type AssetTypeField struct {
	ID       int64     `json:"id"`
	Type     FieldType `json:"type"`
	Name     string    `json:"name"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// AssetType is a dynamically defined schema for assets.
type AssetType struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Fields  []AssetTypeField `json:"fields"`
	Created int64            `json:"created"`
}

// FieldValues maps a field id (decimal string, as serialised in JSON) to its
// value. Values are strings, numbers (float64 after JSON decoding) or booleans.
type FieldValues map[string]any

// Clone returns a shallow copy safe to mutate independently.
func (f FieldValues) Clone() FieldValues {
	out := make(FieldValues, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Asset is an instance of an asset type.
type Asset struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	TypeID  int64       `json:"typeId"`
	Fields  FieldValues `json:"fields"`
	Created int64       `json:"created"`
}

// Grant is a requested permission before it is persisted for an account.
type Grant struct {
	AppID       int64  `json:"appId"`
	Identifier  string `json:"identifier"`
	ContainerID *int64 `json:"containerId,omitempty"`
	AssetID     *int64 `json:"assetId,omitempty"`
}

// PermissionInstance is a persisted grant held by an account.
type PermissionInstance struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"accountId"`
	AppID       int64  `json:"appId"`
	Identifier  string `json:"identifier"`
	ContainerID *int64 `json:"containerId,omitempty"`
	AssetID     *int64 `json:"assetId,omitempty"`
}

// Grant returns the tuple of the instance without its persistence identity.
func (p PermissionInstance) Grant() Grant {
	return Grant{
		AppID:       p.AppID,
		Identifier:  p.Identifier,
		ContainerID: p.ContainerID,
		AssetID:     p.AssetID,
	}
}

// SameTuple reports exact tuple equality between a stored instance and a
// requested grant.
func (p PermissionInstance) SameTuple(g Grant) bool {
	return p.AppID == g.AppID &&
		p.Identifier == g.Identifier &&
		equalID(p.ContainerID, g.ContainerID) &&
		equalID(p.AssetID, g.AssetID)
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Session is an ephemeral login, keyed by a random token.
type Session struct {
	ID           string `json:"sessionId"`
	RefreshToken string `json:"-"`
	AccountID    int64  `json:"accountId"`
	Created      int64  `json:"created"`
	Expire       int64  `json:"expire"`
}

// Expired reports whether the session is past its expiry at unix time now.
func (s Session) Expired(now int64) bool { return now >= s.Expire }

// Snapshot is the result of a visibility resolution: the subset of the entity
// graph an account may see on a bootstrap read.
type Snapshot struct {
	Accounts   []Account                      `json:"accounts"`
	Apps       []App                          `json:"apps"`
	Containers []Container                    `json:"containers"`
	Assets     []Asset                        `json:"assets"`
	AssetTypes []AssetType                    `json:"assetTypes"`
	Grants     map[int64][]PermissionInstance `json:"grants"`
}
