package directory

import (
	"fmt"
	"slices"
)

// GrantPlan is the outcome of validating a requested grant set against the
// account's existing grants: instances to create, instances kept as-is and
// stale instance ids to delete. Applying the plan replaces the account's
// grant set atomically.
type GrantPlan struct {
	Create []Grant
	Keep   []PermissionInstance
	Delete []int64
}

// PlanGrantReplacement validates requested grants for one account and computes
// the create/keep/delete partition against the existing set. apps and
// containers must contain every entity the requested grants reference; a
// missing app or container means the caller passed an unknown id and the
// whole replacement fails.
//
// Validation per grant, in order: the app must exist, its catalog must know
// the identifier, the grant shape must match the identifier's scope, and for
// container/asset scopes the referenced container must exist, list the app
// and (for asset scope) link the asset.
func PlanGrantReplacement(existing []PermissionInstance, requested []Grant, apps map[int64]App, containers map[int64]Container) (GrantPlan, error) {
	validated := make([]Grant, 0, len(requested))
	catalogs := make(map[int64]Catalog, len(apps))

	for _, g := range requested {
		app, ok := apps[g.AppID]
		if !ok {
			return GrantPlan{}, fmt.Errorf("%w: app %d", ErrNotFound, g.AppID)
		}
		catalog, ok := catalogs[app.ID]
		if !ok {
			var err error
			catalog, err = NewCatalog(app.Permissions)
			if err != nil {
				return GrantPlan{}, err
			}
			catalogs[app.ID] = catalog
		}

		g.Identifier = Identify(g.Identifier)
		scope := catalog.Classify(g.Identifier)
		if scope == ScopeUnknown {
			return GrantPlan{}, fmt.Errorf("%w: permission %q not found in catalog of app %d", ErrInvalidInput, g.Identifier, app.ID)
		}
		if err := checkGrantShape(g, scope); err != nil {
			return GrantPlan{}, err
		}
		if scope == ScopeContainer || scope == ScopeAsset {
			container, ok := containers[*g.ContainerID]
			if !ok {
				return GrantPlan{}, fmt.Errorf("%w: container %d", ErrNotFound, *g.ContainerID)
			}
			if !slices.Contains(container.Apps, app.ID) {
				return GrantPlan{}, fmt.Errorf("%w: container %d not related to app %d", ErrInvalidInput, container.ID, app.ID)
			}
			if scope == ScopeAsset && !slices.Contains(container.Assets, *g.AssetID) {
				return GrantPlan{}, fmt.Errorf("%w: asset %d not linked to container %d", ErrInvalidInput, *g.AssetID, container.ID)
			}
		}
		// Exact-tuple dedupe: a repeated tuple must not consume a second
		// existing instance or turn into a create.
		if !containsTuple(validated, g) {
			validated = append(validated, g)
		}
	}

	var plan GrantPlan
	matched := make([]bool, len(existing))
	for _, g := range validated {
		found := false
		for i, inst := range existing {
			if !matched[i] && inst.SameTuple(g) {
				matched[i] = true
				plan.Keep = append(plan.Keep, inst)
				found = true
				break
			}
		}
		if !found {
			plan.Create = append(plan.Create, g)
		}
	}
	for i, inst := range existing {
		if !matched[i] {
			plan.Delete = append(plan.Delete, inst.ID)
		}
	}
	return plan, nil
}

func checkGrantShape(g Grant, scope Scope) error {
	switch scope {
	case ScopeRoot:
		if g.ContainerID != nil || g.AssetID != nil {
			return fmt.Errorf("%w: root permission %q must not reference a container or asset", ErrInvalidInput, g.Identifier)
		}
	case ScopeContainer:
		if g.ContainerID == nil {
			return fmt.Errorf("%w: container permission %q requires a container", ErrInvalidInput, g.Identifier)
		}
		if g.AssetID != nil {
			return fmt.Errorf("%w: container permission %q must not reference an asset", ErrInvalidInput, g.Identifier)
		}
	case ScopeAsset:
		if g.ContainerID == nil || g.AssetID == nil {
			return fmt.Errorf("%w: asset permission %q requires a container and an asset", ErrInvalidInput, g.Identifier)
		}
	}
	return nil
}

func containsTuple(grants []Grant, g Grant) bool {
	for _, existing := range grants {
		if existing.AppID == g.AppID && existing.Identifier == g.Identifier &&
			equalID(existing.ContainerID, g.ContainerID) && equalID(existing.AssetID, g.AssetID) {
			return true
		}
	}
	return false
}
