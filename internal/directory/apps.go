package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AppCreate is the input for registering a relying party.
type AppCreate struct {
	Name            string
	URL             string
	OIDCAuthCodeURL string
	Permissions     AppPermission
	WebFetchEnabled bool
}

// AppEdit is the input for editing a relying party.
type AppEdit struct {
	Name            string
	URL             string
	OIDCAuthCodeURL string
	Permissions     AppPermission
	WebFetchEnabled bool
	Nudge           bool
}

// CreateApp registers an app with a fresh unique bearer token. When web fetch
// is enabled and a fetcher is configured, the declared catalog is replaced by
// the one served at the app's URL before validation.
func (s *Service) CreateApp(ctx context.Context, req AppCreate) (*App, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: app name is required", ErrInvalidInput)
	}
	req.URL = strings.TrimSpace(req.URL)

	if req.WebFetchEnabled && s.fetch != nil {
		fetched, err := s.fetch.FetchPermissions(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		req.Permissions = fetched
	}
	if _, err := NewCatalog(req.Permissions); err != nil {
		return nil, err
	}

	token, err := s.uniqueAppToken(ctx)
	if err != nil {
		return nil, err
	}
	app := &App{
		Name:            req.Name,
		URL:             req.URL,
		Token:           token,
		OIDCAuthCodeURL: strings.TrimSpace(req.OIDCAuthCodeURL),
		Permissions:     req.Permissions,
		WebFetch:        AppWebFetch{Enabled: req.WebFetchEnabled},
		Created:         s.now().Unix(),
	}
	if err := s.store.CreateApp(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// App loads one app by id.
func (s *Service) App(ctx context.Context, id int64) (*App, error) {
	return s.store.AppByID(ctx, id)
}

// AppByToken resolves an app from its bearer token.
func (s *Service) AppByToken(ctx context.Context, token string) (*App, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: app token is required", ErrInvalidInput)
	}
	return s.store.AppByToken(ctx, token)
}

// EditApp replaces an app's name, URL and catalog. Identifiers dropped from
// the catalog cascade to grant deletion inside the store transaction. The
// bootstrap app cannot be edited.
func (s *Service) EditApp(ctx context.Context, id int64, req AppEdit) (*App, error) {
	if s.boot.ProtectedApp(id) {
		return nil, fmt.Errorf("%w: the %s app cannot be edited", ErrInvalidInput, s.boot.AppName)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: app name is required", ErrInvalidInput)
	}

	app, err := s.store.AppByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Nudge && s.fetch != nil {
		s.fetch.Nudge(ctx, app.URL)
	}

	upd := AppUpdate{
		Name:            req.Name,
		URL:             strings.TrimSpace(req.URL),
		OIDCAuthCodeURL: strings.TrimSpace(req.OIDCAuthCodeURL),
		Permissions:     req.Permissions,
		WebFetchEnabled: req.WebFetchEnabled,
	}
	if req.WebFetchEnabled && s.fetch != nil {
		fetched, err := s.fetch.FetchPermissions(ctx, app.URL)
		if err != nil {
			return nil, err
		}
		upd.Permissions = fetched
		upd.FetchedAt = s.now().Unix()
	}
	if _, err := NewCatalog(upd.Permissions); err != nil {
		return nil, err
	}
	return s.store.UpdateApp(ctx, id, upd)
}

// DeleteApps removes the apps, every grant referencing them and their
// membership in container app lists. The bootstrap app cannot be deleted.
func (s *Service) DeleteApps(ctx context.Context, appIDs []int64) error {
	if len(appIDs) == 0 {
		return fmt.Errorf("%w: no app ids provided", ErrInvalidInput)
	}
	for _, id := range appIDs {
		if s.boot.ProtectedApp(id) {
			return fmt.Errorf("%w: the %s app cannot be deleted", ErrInvalidInput, s.boot.AppName)
		}
	}
	return s.store.DeleteApps(ctx, appIDs)
}

func (s *Service) uniqueAppToken(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		token := s.token(appTokenLength)
		_, err := s.store.AppByToken(ctx, token)
		if errors.Is(err, ErrNotFound) {
			return token, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not generate a unique app token", ErrConflict)
}
