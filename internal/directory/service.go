package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sigauth.org/internal/ids"
)

const appTokenLength = 64

// CatalogFetcher retrieves a remote app's permission catalog and delivers
// best-effort change notifications. Implemented by directory/remote.
type CatalogFetcher interface {
	FetchPermissions(ctx context.Context, url string) (AppPermission, error)
	Nudge(ctx context.Context, url string)
}

// Service exposes the directory's administrative operations on top of a
// Store. Input validation and protected-entity policy live here; each
// mutation commits through a single transactional store call.
type Service struct {
	store Store
	boot  Bootstrap
	fetch CatalogFetcher
	now   func() time.Time
	token func(int) string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithCatalogFetcher enables remote catalog fetching for web-fetch apps.
func WithCatalogFetcher(f CatalogFetcher) ServiceOption {
	return func(s *Service) { s.fetch = f }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenGenerator overrides app token generation (useful for tests).
func WithTokenGenerator(fn func(length int) string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.token = fn
		}
	}
}

// NewService constructs the directory service.
func NewService(store Store, boot Bootstrap, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	s := &Service{
		store: store,
		boot:  boot,
		now:   time.Now,
		token: ids.Token,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bootstrap returns the protected-entity configuration the service runs with.
func (s *Service) Bootstrap() Bootstrap { return s.boot }

// CreateAccount registers a new account. The caller supplies an already
// hashed password; a duplicate name or email surfaces as ErrConflict from the
// store.
func (s *Service) CreateAccount(ctx context.Context, name, email, passwordHash string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: account name is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	account := &Account{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Created:      s.now().Unix(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Account loads one account by id.
func (s *Service) Account(ctx context.Context, id int64) (*Account, error) {
	return s.store.AccountByID(ctx, id)
}

// UpdateAccount applies the given field changes.
func (s *Service) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (*Account, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: account name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*upd.Email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &trimmed
	}
	return s.store.UpdateAccount(ctx, id, upd)
}

// DeleteAccounts removes the accounts and, through the store cascade, every
// grant they hold.
func (s *Service) DeleteAccounts(ctx context.Context, accountIDs []int64) error {
	if len(accountIDs) == 0 {
		return fmt.Errorf("%w: no account ids provided", ErrInvalidInput)
	}
	return s.store.DeleteAccounts(ctx, accountIDs)
}

// SetPermissions validates the requested grant set for the account and
// replaces its persisted grants all-or-nothing: tuples already held are kept,
// new tuples are created, everything else is deleted. The returned slice is
// the account's final grant set.
func (s *Service) SetPermissions(ctx context.Context, accountID int64, requested []Grant) ([]PermissionInstance, error) {
	if accountID <= 0 {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	for i, g := range requested {
		if g.AppID <= 0 {
			return nil, fmt.Errorf("%w: grant %d references no app", ErrInvalidInput, i)
		}
		if strings.TrimSpace(g.Identifier) == "" {
			return nil, fmt.Errorf("%w: grant %d has an empty identifier", ErrInvalidInput, i)
		}
		requested[i].Identifier = Identify(g.Identifier)
	}
	return s.store.ReplaceGrants(ctx, accountID, requested)
}

// Permissions returns the account's current grant set.
func (s *Service) Permissions(ctx context.Context, accountID int64) ([]PermissionInstance, error) {
	return s.store.GrantsByAccount(ctx, accountID)
}

// Visibility resolves the entity subset the account may see.
func (s *Service) Visibility(ctx context.Context, account Account, grants []PermissionInstance) (Snapshot, error) {
	return ResolveVisibility(ctx, s.store, s.boot, account, grants)
}
