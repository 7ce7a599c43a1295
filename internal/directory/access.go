package directory

import "context"

// ResolveVisibility computes the subset of the entity graph the account may
// see on a bootstrap read. Root accounts see everything. Everyone else sees
// the apps their grants reference, the containers of their container and
// asset scoped grants, the assets linked to those containers, the asset types
// of those assets, and the accounts sharing at least one of those containers.
func ResolveVisibility(ctx context.Context, store Store, boot Bootstrap, account Account, grants []PermissionInstance) (Snapshot, error) {
	var snap Snapshot
	err := store.ReadView(ctx, func(ctx context.Context, v View) error {
		if boot.IsRoot(grants) {
			return resolveAll(ctx, v, &snap)
		}
		return resolveScoped(ctx, v, account, grants, &snap)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func resolveAll(ctx context.Context, v View, snap *Snapshot) error {
	var err error
	if snap.Accounts, err = v.Accounts(ctx); err != nil {
		return err
	}
	if snap.Apps, err = v.Apps(ctx); err != nil {
		return err
	}
	if snap.Containers, err = v.Containers(ctx); err != nil {
		return err
	}
	if snap.Assets, err = v.Assets(ctx); err != nil {
		return err
	}
	if snap.AssetTypes, err = v.AssetTypes(ctx); err != nil {
		return err
	}
	accountIDs := make([]int64, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accountIDs = append(accountIDs, a.ID)
	}
	all, err := v.GrantsByAccounts(ctx, accountIDs)
	if err != nil {
		return err
	}
	snap.Grants = groupGrants(all)
	return nil
}

func resolveScoped(ctx context.Context, v View, account Account, grants []PermissionInstance, snap *Snapshot) error {
	appIDs := uniqueInts(nil)
	containerIDs := uniqueInts(nil)
	for _, g := range grants {
		appIDs.add(g.AppID)
		if g.ContainerID != nil {
			containerIDs.add(*g.ContainerID)
		}
	}

	var err error
	if snap.Apps, err = v.AppsByIDs(ctx, appIDs.values()); err != nil {
		return err
	}
	if snap.Containers, err = v.ContainersByIDs(ctx, containerIDs.values()); err != nil {
		return err
	}

	assetIDs := uniqueInts(nil)
	for _, c := range snap.Containers {
		for _, id := range c.Assets {
			assetIDs.add(id)
		}
	}
	if snap.Assets, err = v.AssetsByIDs(ctx, assetIDs.values()); err != nil {
		return err
	}

	typeIDs := uniqueInts(nil)
	for _, a := range snap.Assets {
		typeIDs.add(a.TypeID)
	}
	if snap.AssetTypes, err = v.AssetTypesByIDs(ctx, typeIDs.values()); err != nil {
		return err
	}

	// Accounts sharing at least one container scope with the caller, the
	// caller included.
	shared, err := v.GrantsByContainers(ctx, containerIDs.values())
	if err != nil {
		return err
	}
	accountIDs := uniqueInts([]int64{account.ID})
	for _, g := range shared {
		accountIDs.add(g.AccountID)
	}
	if snap.Accounts, err = v.AccountsByIDs(ctx, accountIDs.values()); err != nil {
		return err
	}
	visible, err := v.GrantsByAccounts(ctx, accountIDs.values())
	if err != nil {
		return err
	}
	snap.Grants = groupGrants(visible)
	return nil
}

func groupGrants(all []PermissionInstance) map[int64][]PermissionInstance {
	grouped := make(map[int64][]PermissionInstance)
	for _, g := range all {
		grouped[g.AccountID] = append(grouped[g.AccountID], g)
	}
	return grouped
}

type intSet struct {
	seen  map[int64]struct{}
	order []int64
}

func uniqueInts(initial []int64) *intSet {
	s := &intSet{seen: make(map[int64]struct{})}
	for _, v := range initial {
		s.add(v)
	}
	return s
}

func (s *intSet) add(v int64) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *intSet) values() []int64 { return s.order }
