package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
	"sigauth.org/internal/ids"
)

const sessionTokenLength = 64

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// Service owns login sessions and account API tokens on top of the directory
// store.
type Service struct {
	store  directory.Store
	signer *TokenSigner
	ttl    time.Duration
	now    func() time.Time
	token  func(int) string
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenGenerator overrides session id generation (useful for tests).
func WithTokenGenerator(fn func(length int) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.token = fn
		}
	}
}

// NewService constructs the session service.
func NewService(store directory.Store, signer *TokenSigner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	if signer == nil {
		return nil, errors.New("token signer is required")
	}
	s := &Service{
		store:  store,
		signer: signer,
		ttl:    DefaultTTL,
		now:    time.Now,
		token:  ids.Token,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies the credentials and opens a session. Unknown accounts and
// wrong passwords are indistinguishable to the caller. Accounts carrying a
// second-factor secret cannot log in over this surface.
func (s *Service) Login(ctx context.Context, name, password string) (*directory.Session, *directory.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: credentials are required", directory.ErrInvalidInput)
	}
	account, err := s.store.AccountByName(ctx, name)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: invalid credentials", directory.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if VerifyPassword(account.PasswordHash, password) != nil {
		return nil, nil, fmt.Errorf("%w: invalid credentials", directory.ErrUnauthorized)
	}
	if account.SecondFactor != "" {
		return nil, nil, fmt.Errorf("%w: second factor required", directory.ErrUnauthorized)
	}

	now := s.now().Unix()
	sess := &directory.Session{
		ID:           s.token(sessionTokenLength),
		RefreshToken: s.token(sessionTokenLength),
		AccountID:    account.ID,
		Created:      now,
		Expire:       now + int64(s.ttl.Seconds()),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, nil, err
	}
	audit.LogEvent(ctx, "session.login", map[string]any{"account_id": account.ID})
	return sess, account, nil
}

// Logout closes the session. Closing an unknown session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := s.store.DeleteSession(ctx, sessionID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil
	}
	if err == nil {
		audit.LogEvent(ctx, "session.logout", nil)
	}
	return err
}

// Authenticate resolves a session id to its account and grant set. Expired
// sessions are deleted on sight.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*directory.Account, []directory.PermissionInstance, error) {
	if sessionID == "" {
		return nil, nil, fmt.Errorf("%w: no session", directory.ErrUnauthorized)
	}
	sess, err := s.store.SessionByID(ctx, sessionID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: no session", directory.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if sess.Expired(s.now().Unix()) {
		_ = s.store.DeleteSession(ctx, sessionID)
		return nil, nil, fmt.Errorf("%w: session expired", directory.ErrUnauthorized)
	}
	return s.resolveAccount(ctx, sess.AccountID)
}

// IssueAPIToken signs a fresh API token for the account and stores it,
// revoking any previously issued one.
func (s *Service) IssueAPIToken(ctx context.Context, accountID int64) (string, error) {
	token, err := s.signer.Sign(accountID)
	if err != nil {
		return "", err
	}
	if _, err := s.store.UpdateAccount(ctx, accountID, directory.AccountUpdate{APIToken: &token}); err != nil {
		return "", err
	}
	audit.LogEvent(ctx, "session.api_token_issued", map[string]any{"account_id": accountID})
	return token, nil
}

// AuthenticateAPIToken verifies a bearer API token and resolves its account
// and grant set. The token must match the one currently stored on the
// account, so reissuing invalidates older tokens even before they expire.
func (s *Service) AuthenticateAPIToken(ctx context.Context, token string) (*directory.Account, []directory.PermissionInstance, error) {
	accountID, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid api token", directory.ErrUnauthorized)
	}
	account, grants, err := s.resolveAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if subtle.ConstantTimeCompare([]byte(account.APIToken), []byte(token)) != 1 {
		return nil, nil, fmt.Errorf("%w: invalid api token", directory.ErrUnauthorized)
	}
	return account, grants, nil
}

// PurgeExpired deletes every session past its expiry and reports the count.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().Unix())
}

// RunSweeper purges expired sessions on the given interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				audit.LogEvent(ctx, "session.sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				audit.LogEvent(ctx, "session.sweep", map[string]any{"purged": n})
			}
		}
	}
}

func (s *Service) resolveAccount(ctx context.Context, accountID int64) (*directory.Account, []directory.PermissionInstance, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: account no longer exists", directory.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	grants, err := s.store.GrantsByAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	return account, grants, nil
}
