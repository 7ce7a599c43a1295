package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// CreateContainer creates a named grouping of assets and apps. Alongside the
// container a bookkeeping asset of the bootstrap asset type is created and
// linked into the bootstrap container, so the new container is addressable
// through the asset permission scope.
func (s *Service) CreateContainer(ctx context.Context, name string, assets, apps []int64) (*Container, *Asset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: container name is required", ErrInvalidInput)
	}
	if slices.Contains(apps, s.boot.AppID) {
		return nil, nil, fmt.Errorf("%w: cannot add the %s app to a container", ErrInvalidInput, s.boot.AppName)
	}
	return s.store.CreateContainer(ctx, name, dedupeInts(assets), dedupeInts(apps))
}

// Container loads one container by id.
func (s *Service) Container(ctx context.Context, id int64) (*Container, error) {
	return s.store.ContainerByID(ctx, id)
}

// EditContainer replaces a container's name and membership sets. Grants
// scoped to this container through a removed app or removed asset are deleted
// in the same transaction, and the bookkeeping asset is kept in sync. The
// bootstrap container cannot be edited.
func (s *Service) EditContainer(ctx context.Context, id int64, name string, assets, apps []int64) (*Container, error) {
	if s.boot.ProtectedContainer(id) {
		return nil, fmt.Errorf("%w: the %s container cannot be edited", ErrInvalidInput, s.boot.ContainerName)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: container name is required", ErrInvalidInput)
	}
	if slices.Contains(apps, s.boot.AppID) {
		return nil, fmt.Errorf("%w: cannot add the %s app to a container", ErrInvalidInput, s.boot.AppName)
	}
	return s.store.UpdateContainer(ctx, id, name, dedupeInts(assets), dedupeInts(apps))
}

// DeleteContainers removes the containers, their scoped grants and their
// bookkeeping assets. The bootstrap container cannot be deleted.
func (s *Service) DeleteContainers(ctx context.Context, containerIDs []int64) error {
	if len(containerIDs) == 0 {
		return fmt.Errorf("%w: no container ids provided", ErrInvalidInput)
	}
	for _, id := range containerIDs {
		if s.boot.ProtectedContainer(id) {
			return fmt.Errorf("%w: the %s container cannot be deleted", ErrInvalidInput, s.boot.ContainerName)
		}
	}
	return s.store.DeleteContainers(ctx, containerIDs)
}

func dedupeInts(values []int64) []int64 {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(values))
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
