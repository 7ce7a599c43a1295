package directory

// Bootstrap names the protected entities seeded at first boot. The directory
// exposes itself through them: one app representing the service, one container
// holding bookkeeping assets and one asset type describing "a container, as an
// asset". Protected entities reject edit and delete.
type Bootstrap struct {
	AppID         int64
	AppName       string
	ContainerID   int64
	ContainerName string
	AssetTypeID   int64
	AssetTypeName string
}

// Well-known field ids on the bootstrap asset type. Every bookkeeping asset
// mirrors the container it stands for.
const (
	ContainerAssetFieldID   = "0" // container id  (Number, required)
	ContainerAssetFieldName = "1" // container name (Text, required)
)

// RootPermissionName is the catalog entry of the bootstrap app that marks an
// account as root. Its identifier form is Identify(RootPermissionName).
const RootPermissionName = "Root"

// DefaultBootstrap returns the protected ids used by a stock deployment.
// Deployments may override them through configuration; the seed data must
// match.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		AppID:         1,
		AppName:       "SigAuth",
		ContainerID:   1,
		ContainerName: "Container Management",
		AssetTypeID:   1,
		AssetTypeName: "Container",
	}
}

// RootIdentifier returns the normalized identifier of the root grant.
func (b Bootstrap) RootIdentifier() string { return Identify(RootPermissionName) }

// ProtectedApp reports whether id is the undeletable bootstrap app.
func (b Bootstrap) ProtectedApp(id int64) bool { return id == b.AppID }

// ProtectedContainer reports whether id is the undeletable bootstrap container.
func (b Bootstrap) ProtectedContainer(id int64) bool { return id == b.ContainerID }

// ProtectedAssetType reports whether id is the undeletable bootstrap asset type.
func (b Bootstrap) ProtectedAssetType(id int64) bool { return id == b.AssetTypeID }

// AssetTypeFields returns the schema of the bootstrap asset type.
func (b Bootstrap) AssetTypeFields() []AssetTypeField {
	return []AssetTypeField{
		{ID: 0, Type: FieldNumber, Name: "Container ID", Required: true},
		{ID: 1, Type: FieldText, Name: "Container Name", Required: true},
	}
}

// IsRoot reports whether the grant set contains the root grant of the
// bootstrap app in root shape (no container, no asset).
func (b Bootstrap) IsRoot(grants []PermissionInstance) bool {
	root := b.RootIdentifier()
	for _, g := range grants {
		if g.AppID == b.AppID && g.Identifier == root && g.ContainerID == nil && g.AssetID == nil {
			return true
		}
	}
	return false
}
