package directory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"sigauth.org/internal/ids"
)

// Memory is an in-process Store used by tests and local demos. All methods
// run under one mutex, so every compound operation is trivially atomic. On
// construction the protected bootstrap entities are seeded the same way the
// SQL seed files do.
type Memory struct {
	mu   sync.RWMutex
	boot Bootstrap

	accounts   map[int64]Account
	apps       map[int64]App
	containers map[int64]Container
	assets     map[int64]Asset
	assetTypes map[int64]AssetType
	grants     map[int64]PermissionInstance
	sessions   map[string]Session

	nextAccount   int64
	nextApp       int64
	nextContainer int64
	nextAsset     int64
	nextAssetType int64
	nextGrant     int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store seeded with the bootstrap app, container
// and asset type at their configured ids.
func NewMemory(boot Bootstrap) *Memory {
	now := time.Now().Unix()
	m := &Memory{
		boot:       boot,
		accounts:   make(map[int64]Account),
		apps:       make(map[int64]App),
		containers: make(map[int64]Container),
		assets:     make(map[int64]Asset),
		assetTypes: make(map[int64]AssetType),
		grants:     make(map[int64]PermissionInstance),
		sessions:   make(map[string]Session),
	}
	m.apps[boot.AppID] = App{
		ID:          boot.AppID,
		Name:        boot.AppName,
		Token:       ids.Token(appTokenLength),
		Permissions: AppPermission{Root: []string{RootPermissionName}},
		Created:     now,
	}
	m.containers[boot.ContainerID] = Container{
		ID:      boot.ContainerID,
		Name:    boot.ContainerName,
		Created: now,
	}
	m.assetTypes[boot.AssetTypeID] = AssetType{
		ID:      boot.AssetTypeID,
		Name:    boot.AssetTypeName,
		Fields:  boot.AssetTypeFields(),
		Created: now,
	}
	m.nextApp = boot.AppID
	m.nextContainer = boot.ContainerID
	m.nextAssetType = boot.AssetTypeID
	return m
}

// Accounts.

func (m *Memory) CreateAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Name == a.Name {
			return fmt.Errorf("%w: account name %q is taken", ErrConflict, a.Name)
		}
		if existing.Email == a.Email {
			return fmt.Errorf("%w: email %q is taken", ErrConflict, a.Email)
		}
	}
	m.nextAccount++
	a.ID = m.nextAccount
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) AccountByID(ctx context.Context, id int64) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return &a, nil
}

func (m *Memory) AccountByName(ctx context.Context, name string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Name == name {
			out := a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: account %q", ErrNotFound, name)
}

func (m *Memory) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	for otherID, other := range m.accounts {
		if otherID == id {
			continue
		}
		if upd.Name != nil && other.Name == *upd.Name {
			return nil, fmt.Errorf("%w: account name %q is taken", ErrConflict, *upd.Name)
		}
		if upd.Email != nil && other.Email == *upd.Email {
			return nil, fmt.Errorf("%w: email %q is taken", ErrConflict, *upd.Email)
		}
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Email != nil {
		a.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = *upd.PasswordHash
	}
	if upd.APIToken != nil {
		a.APIToken = *upd.APIToken
	}
	if upd.SecondFactor != nil {
		a.SecondFactor = *upd.SecondFactor
	}
	m.accounts[id] = a
	return &a, nil
}

func (m *Memory) DeleteAccounts(ctx context.Context, accountIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range accountIDs {
		if _, ok := m.accounts[id]; !ok {
			return fmt.Errorf("%w: account %d", ErrNotFound, id)
		}
	}
	for _, id := range accountIDs {
		delete(m.accounts, id)
		for grantID, g := range m.grants {
			if g.AccountID == id {
				delete(m.grants, grantID)
			}
		}
		for sessionID, s := range m.sessions {
			if s.AccountID == id {
				delete(m.sessions, sessionID)
			}
		}
	}
	return nil
}

// Grants.

func (m *Memory) ReplaceGrants(ctx context.Context, accountID int64, requested []Grant) ([]PermissionInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}
	existing := m.grantsOfLocked(accountID)
	plan, err := PlanGrantReplacement(existing, requested, m.apps, m.containers)
	if err != nil {
		return nil, err
	}
	for _, id := range plan.Delete {
		delete(m.grants, id)
	}
	final := append([]PermissionInstance(nil), plan.Keep...)
	for _, g := range plan.Create {
		m.nextGrant++
		inst := PermissionInstance{
			ID:          m.nextGrant,
			AccountID:   accountID,
			AppID:       g.AppID,
			Identifier:  g.Identifier,
			ContainerID: g.ContainerID,
			AssetID:     g.AssetID,
		}
		m.grants[inst.ID] = inst
		final = append(final, inst)
	}
	return final, nil
}

func (m *Memory) GrantsByAccount(ctx context.Context, accountID int64) ([]PermissionInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}
	return m.grantsOfLocked(accountID), nil
}

func (m *Memory) grantsOfLocked(accountID int64) []PermissionInstance {
	var out []PermissionInstance
	for _, g := range m.grants {
		if g.AccountID == accountID {
			out = append(out, g)
		}
	}
	sortByID(out, func(g PermissionInstance) int64 { return g.ID })
	return out
}

// Apps.

func (m *Memory) CreateApp(ctx context.Context, a *App) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.apps {
		if existing.Token == a.Token {
			return fmt.Errorf("%w: app token collision", ErrConflict)
		}
	}
	m.nextApp++
	a.ID = m.nextApp
	m.apps[a.ID] = cloneApp(*a)
	return nil
}

func (m *Memory) AppByID(ctx context.Context, id int64) (*App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, fmt.Errorf("%w: app %d", ErrNotFound, id)
	}
	out := cloneApp(a)
	return &out, nil
}

func (m *Memory) AppByToken(ctx context.Context, token string) (*App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.apps {
		if a.Token == token {
			out := cloneApp(a)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: app token", ErrNotFound)
}

func (m *Memory) UpdateApp(ctx context.Context, id int64, upd AppUpdate) (*App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, fmt.Errorf("%w: app %d", ErrNotFound, id)
	}

	// Grants carrying identifiers dropped from the catalog become invalid
	// and are deleted in the same operation.
	removed := RemovedIdentifiers(a.Permissions, upd.Permissions)
	if len(removed) > 0 {
		gone := make(map[string]struct{}, len(removed))
		for _, ident := range removed {
			gone[ident] = struct{}{}
		}
		for grantID, g := range m.grants {
			if g.AppID != id {
				continue
			}
			if _, ok := gone[g.Identifier]; ok {
				delete(m.grants, grantID)
			}
		}
	}

	a.Name = upd.Name
	a.URL = upd.URL
	a.OIDCAuthCodeURL = upd.OIDCAuthCodeURL
	a.Permissions = upd.Permissions
	a.WebFetch.Enabled = upd.WebFetchEnabled
	if upd.FetchedAt != 0 {
		a.WebFetch.LastFetch = upd.FetchedAt
		a.WebFetch.Success = true
	}
	m.apps[id] = cloneApp(a)
	out := cloneApp(a)
	return &out, nil
}

func (m *Memory) DeleteApps(ctx context.Context, appIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range appIDs {
		if _, ok := m.apps[id]; !ok {
			return fmt.Errorf("%w: app %d", ErrNotFound, id)
		}
	}
	for _, id := range appIDs {
		delete(m.apps, id)
		for grantID, g := range m.grants {
			if g.AppID == id {
				delete(m.grants, grantID)
			}
		}
		for containerID, c := range m.containers {
			if i := slices.Index(c.Apps, id); i >= 0 {
				c.Apps = slices.Delete(slices.Clone(c.Apps), i, i+1)
				m.containers[containerID] = c
			}
		}
	}
	return nil
}

// Containers.

func (m *Memory) CreateContainer(ctx context.Context, name string, assets, apps []int64) (*Container, *Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMembersLocked(assets, apps); err != nil {
		return nil, nil, err
	}
	now := time.Now().Unix()
	m.nextContainer++
	c := Container{
		ID:      m.nextContainer,
		Name:    name,
		Assets:  slices.Clone(assets),
		Apps:    slices.Clone(apps),
		Created: now,
	}
	m.containers[c.ID] = c

	// Bookkeeping asset: the new container, represented as an asset of the
	// bootstrap type and linked into the bootstrap container.
	m.nextAsset++
	book := Asset{
		ID:     m.nextAsset,
		Name:   fmt.Sprintf("%d - %s", c.ID, name),
		TypeID: m.boot.AssetTypeID,
		Fields: FieldValues{
			ContainerAssetFieldID:   float64(c.ID),
			ContainerAssetFieldName: name,
		},
		Created: now,
	}
	m.assets[book.ID] = cloneAsset(book)
	home := m.containers[m.boot.ContainerID]
	home.Assets = append(slices.Clone(home.Assets), book.ID)
	m.containers[m.boot.ContainerID] = home

	outC := cloneContainer(c)
	outA := cloneAsset(book)
	return &outC, &outA, nil
}

func (m *Memory) ContainerByID(ctx context.Context, id int64) (*Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: container %d", ErrNotFound, id)
	}
	out := cloneContainer(c)
	return &out, nil
}

func (m *Memory) UpdateContainer(ctx context.Context, id int64, name string, assets, apps []int64) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: container %d", ErrNotFound, id)
	}
	if err := m.checkMembersLocked(assets, apps); err != nil {
		return nil, err
	}

	// Grants scoped to this container through a removed app or a removed
	// asset no longer satisfy the relation chain and are deleted.
	removedApps := missingFrom(c.Apps, apps)
	removedAssets := missingFrom(c.Assets, assets)
	for grantID, g := range m.grants {
		if g.ContainerID == nil || *g.ContainerID != id {
			continue
		}
		if _, ok := removedApps[g.AppID]; ok {
			delete(m.grants, grantID)
			continue
		}
		if g.AssetID != nil {
			if _, ok := removedAssets[*g.AssetID]; ok {
				delete(m.grants, grantID)
			}
		}
	}

	c.Name = name
	c.Assets = slices.Clone(assets)
	c.Apps = slices.Clone(apps)
	m.containers[id] = c
	m.syncBookkeepingAssetLocked(id, name)
	out := cloneContainer(c)
	return &out, nil
}

func (m *Memory) DeleteContainers(ctx context.Context, containerIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range containerIDs {
		if _, ok := m.containers[id]; !ok {
			return fmt.Errorf("%w: container %d", ErrNotFound, id)
		}
	}
	for _, id := range containerIDs {
		delete(m.containers, id)
		for grantID, g := range m.grants {
			if g.ContainerID != nil && *g.ContainerID == id {
				delete(m.grants, grantID)
			}
		}
		if bookID, ok := m.bookkeepingAssetLocked(id); ok {
			m.deleteAssetLocked(bookID)
		}
	}
	return nil
}

func (m *Memory) checkMembersLocked(assets, apps []int64) error {
	for _, id := range assets {
		if _, ok := m.assets[id]; !ok {
			return fmt.Errorf("%w: asset %d", ErrNotFound, id)
		}
	}
	for _, id := range apps {
		if _, ok := m.apps[id]; !ok {
			return fmt.Errorf("%w: app %d", ErrNotFound, id)
		}
	}
	return nil
}

func (m *Memory) bookkeepingAssetLocked(containerID int64) (int64, bool) {
	for id, a := range m.assets {
		if a.TypeID != m.boot.AssetTypeID {
			continue
		}
		if v, ok := a.Fields[ContainerAssetFieldID].(float64); ok && int64(v) == containerID {
			return id, true
		}
	}
	return 0, false
}

func (m *Memory) syncBookkeepingAssetLocked(containerID int64, name string) {
	id, ok := m.bookkeepingAssetLocked(containerID)
	if !ok {
		return
	}
	a := m.assets[id]
	a.Name = fmt.Sprintf("%d - %s", containerID, name)
	a.Fields = a.Fields.Clone()
	a.Fields[ContainerAssetFieldName] = name
	m.assets[id] = a
}

// Assets.

func (m *Memory) UpsertAsset(ctx context.Context, req AssetUpsert) (*Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID != nil {
		a, ok := m.assets[*req.ID]
		if !ok {
			return nil, fmt.Errorf("%w: asset %d", ErrNotFound, *req.ID)
		}
		t, ok := m.assetTypes[a.TypeID]
		if !ok {
			return nil, fmt.Errorf("%w: asset type %d", ErrNotFound, a.TypeID)
		}
		if err := ValidateAssetFields(t.Fields, req.Fields); err != nil {
			return nil, err
		}
		a.Name = req.Name
		a.Fields = req.Fields.Clone()
		m.assets[a.ID] = cloneAsset(a)
		out := cloneAsset(a)
		return &out, nil
	}

	t, ok := m.assetTypes[req.TypeID]
	if !ok {
		return nil, fmt.Errorf("%w: asset type %d", ErrNotFound, req.TypeID)
	}
	if err := ValidateAssetFields(t.Fields, req.Fields); err != nil {
		return nil, err
	}
	m.nextAsset++
	a := Asset{
		ID:      m.nextAsset,
		Name:    req.Name,
		TypeID:  req.TypeID,
		Fields:  req.Fields.Clone(),
		Created: time.Now().Unix(),
	}
	m.assets[a.ID] = cloneAsset(a)
	out := cloneAsset(a)
	return &out, nil
}

func (m *Memory) AssetByID(ctx context.Context, id int64) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset %d", ErrNotFound, id)
	}
	out := cloneAsset(a)
	return &out, nil
}

func (m *Memory) DeleteAssets(ctx context.Context, assetIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range assetIDs {
		if _, ok := m.assets[id]; !ok {
			return fmt.Errorf("%w: asset %d", ErrNotFound, id)
		}
	}
	for _, id := range assetIDs {
		m.deleteAssetLocked(id)
	}
	return nil
}

// deleteAssetLocked removes one asset together with the grants referencing it
// and its membership in container asset lists.
func (m *Memory) deleteAssetLocked(id int64) {
	delete(m.assets, id)
	for grantID, g := range m.grants {
		if g.AssetID != nil && *g.AssetID == id {
			delete(m.grants, grantID)
		}
	}
	for containerID, c := range m.containers {
		if i := slices.Index(c.Assets, id); i >= 0 {
			c.Assets = slices.Delete(slices.Clone(c.Assets), i, i+1)
			m.containers[containerID] = c
		}
	}
}

// Asset types.

func (m *Memory) CreateAssetType(ctx context.Context, name string, fields []AssetTypeField) (*AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAssetType++
	t := AssetType{
		ID:      m.nextAssetType,
		Name:    name,
		Fields:  cloneFields(fields),
		Created: time.Now().Unix(),
	}
	m.assetTypes[t.ID] = t
	out := cloneAssetType(t)
	return &out, nil
}

func (m *Memory) AssetTypeByID(ctx context.Context, id int64) (*AssetType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.assetTypes[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset type %d", ErrNotFound, id)
	}
	out := cloneAssetType(t)
	return &out, nil
}

func (m *Memory) UpdateAssetType(ctx context.Context, id int64, name string, fields []AssetTypeField) (*AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.assetTypes[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset type %d", ErrNotFound, id)
	}
	normalized, err := NormalizeFieldUpdate(t.Fields, fields)
	if err != nil {
		return nil, err
	}
	diff := DiffFields(t.Fields, normalized)
	for assetID, a := range m.assets {
		if a.TypeID != id {
			continue
		}
		if migrated, changed := MigrateFields(a.Fields, diff); changed {
			a.Fields = migrated
			m.assets[assetID] = a
		}
	}
	t.Name = name
	t.Fields = cloneFields(normalized)
	m.assetTypes[id] = t
	out := cloneAssetType(t)
	return &out, nil
}

func (m *Memory) DeleteAssetTypes(ctx context.Context, typeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range typeIDs {
		if _, ok := m.assetTypes[id]; !ok {
			return fmt.Errorf("%w: asset type %d", ErrNotFound, id)
		}
	}
	for _, id := range typeIDs {
		delete(m.assetTypes, id)
		var orphaned []int64
		for assetID, a := range m.assets {
			if a.TypeID == id {
				orphaned = append(orphaned, assetID)
			}
		}
		for _, assetID := range orphaned {
			m.deleteAssetLocked(assetID)
		}
	}
	return nil
}

// Sessions.

func (m *Memory) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[s.AccountID]; !ok {
		return fmt.Errorf("%w: account %d", ErrNotFound, s.AccountID)
	}
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("%w: session id collision", ErrConflict)
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) SessionByID(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: session", ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// ReadView runs fn under the read lock against the live maps.
func (m *Memory) ReadView(ctx context.Context, fn func(context.Context, View) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, memView{m})
}

// memView serves View reads; the Memory read lock is held for its lifetime.
type memView struct{ m *Memory }

func (v memView) Accounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(v.m.accounts))
	for _, a := range v.m.accounts {
		out = append(out, a)
	}
	sortByID(out, func(a Account) int64 { return a.ID })
	return out, nil
}

func (v memView) AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error) {
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := v.m.accounts[id]; ok {
			out = append(out, a)
		}
	}
	sortByID(out, func(a Account) int64 { return a.ID })
	return out, nil
}

func (v memView) Apps(ctx context.Context) ([]App, error) {
	out := make([]App, 0, len(v.m.apps))
	for _, a := range v.m.apps {
		out = append(out, cloneApp(a))
	}
	sortByID(out, func(a App) int64 { return a.ID })
	return out, nil
}

func (v memView) AppsByIDs(ctx context.Context, ids []int64) ([]App, error) {
	out := make([]App, 0, len(ids))
	for _, id := range ids {
		if a, ok := v.m.apps[id]; ok {
			out = append(out, cloneApp(a))
		}
	}
	sortByID(out, func(a App) int64 { return a.ID })
	return out, nil
}

func (v memView) Containers(ctx context.Context) ([]Container, error) {
	out := make([]Container, 0, len(v.m.containers))
	for _, c := range v.m.containers {
		out = append(out, cloneContainer(c))
	}
	sortByID(out, func(c Container) int64 { return c.ID })
	return out, nil
}

func (v memView) ContainersByIDs(ctx context.Context, ids []int64) ([]Container, error) {
	out := make([]Container, 0, len(ids))
	for _, id := range ids {
		if c, ok := v.m.containers[id]; ok {
			out = append(out, cloneContainer(c))
		}
	}
	sortByID(out, func(c Container) int64 { return c.ID })
	return out, nil
}

func (v memView) Assets(ctx context.Context) ([]Asset, error) {
	out := make([]Asset, 0, len(v.m.assets))
	for _, a := range v.m.assets {
		out = append(out, cloneAsset(a))
	}
	sortByID(out, func(a Asset) int64 { return a.ID })
	return out, nil
}

func (v memView) AssetsByIDs(ctx context.Context, ids []int64) ([]Asset, error) {
	out := make([]Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := v.m.assets[id]; ok {
			out = append(out, cloneAsset(a))
		}
	}
	sortByID(out, func(a Asset) int64 { return a.ID })
	return out, nil
}

func (v memView) AssetTypes(ctx context.Context) ([]AssetType, error) {
	out := make([]AssetType, 0, len(v.m.assetTypes))
	for _, t := range v.m.assetTypes {
		out = append(out, cloneAssetType(t))
	}
	sortByID(out, func(t AssetType) int64 { return t.ID })
	return out, nil
}

func (v memView) AssetTypesByIDs(ctx context.Context, ids []int64) ([]AssetType, error) {
	out := make([]AssetType, 0, len(ids))
	for _, id := range ids {
		if t, ok := v.m.assetTypes[id]; ok {
			out = append(out, cloneAssetType(t))
		}
	}
	sortByID(out, func(t AssetType) int64 { return t.ID })
	return out, nil
}

func (v memView) GrantsByAccounts(ctx context.Context, accountIDs []int64) ([]PermissionInstance, error) {
	want := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = struct{}{}
	}
	var out []PermissionInstance
	for _, g := range v.m.grants {
		if _, ok := want[g.AccountID]; ok {
			out = append(out, g)
		}
	}
	sortByID(out, func(g PermissionInstance) int64 { return g.ID })
	return out, nil
}

func (v memView) GrantsByContainers(ctx context.Context, containerIDs []int64) ([]PermissionInstance, error) {
	want := make(map[int64]struct{}, len(containerIDs))
	for _, id := range containerIDs {
		want[id] = struct{}{}
	}
	var out []PermissionInstance
	for _, g := range v.m.grants {
		if g.ContainerID == nil {
			continue
		}
		if _, ok := want[*g.ContainerID]; ok {
			out = append(out, g)
		}
	}
	sortByID(out, func(g PermissionInstance) int64 { return g.ID })
	return out, nil
}

// Helpers.

func sortByID[T any](items []T, id func(T) int64) {
	slices.SortFunc(items, func(a, b T) int {
		switch {
		case id(a) < id(b):
			return -1
		case id(a) > id(b):
			return 1
		default:
			return 0
		}
	})
}

func missingFrom(old, updated []int64) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, v := range old {
		if !slices.Contains(updated, v) {
			out[v] = struct{}{}
		}
	}
	return out
}

func cloneApp(a App) App {
	a.Permissions = AppPermission{
		Asset:     slices.Clone(a.Permissions.Asset),
		Container: slices.Clone(a.Permissions.Container),
		Root:      slices.Clone(a.Permissions.Root),
	}
	return a
}

func cloneContainer(c Container) Container {
	c.Assets = slices.Clone(c.Assets)
	c.Apps = slices.Clone(c.Apps)
	return c
}

func cloneAsset(a Asset) Asset {
	a.Fields = a.Fields.Clone()
	return a
}

func cloneAssetType(t AssetType) AssetType {
	t.Fields = cloneFields(t.Fields)
	return t
}

func cloneFields(fields []AssetTypeField) []AssetTypeField {
	out := make([]AssetTypeField, len(fields))
	for i, f := range fields {
		out[i] = f
		out[i].Options = slices.Clone(f.Options)
	}
	return out
}
