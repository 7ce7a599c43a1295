package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sigauth.org/internal/directory"
	"sigauth.org/internal/obs"
)

const (
	configPath = "/connect-config.json"
	nudgePath  = "/api/connect/nudge"

	maxConfigBytes = 1 << 20
)

// Fetcher retrieves permission catalogs from relying parties over HTTP and
// implements directory.CatalogFetcher. An app with web fetch enabled serves
// its declared catalog at <url>/connect-config.json.
type Fetcher struct {
	client   *http.Client
	attempts int
	timeout  time.Duration
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithClient overrides the HTTP client (useful for tests).
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithAttempts sets how many times a fetch is tried before giving up.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher returns a Fetcher with three attempts of two seconds each.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		attempts: 3,
		timeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchPermissions downloads and validates the app's catalog. A host that
// stays unreachable across all attempts fails with directory.ErrTimeout; a
// reachable host serving a malformed catalog fails with
// directory.ErrUnprocessable immediately.
func (f *Fetcher) FetchPermissions(ctx context.Context, url string) (directory.AppPermission, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return directory.AppPermission{}, fmt.Errorf("%w: app url is required for web fetch", directory.ErrInvalidInput)
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		perms, err := f.fetchOnce(ctx, url+configPath)
		if err == nil {
			obs.CountCatalogFetch(true)
			return perms, nil
		}
		if errors.Is(err, directory.ErrUnprocessable) {
			obs.CountCatalogFetch(false)
			return directory.AppPermission{}, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	obs.CountCatalogFetch(false)
	return directory.AppPermission{}, fmt.Errorf("%w: could not fetch catalog from %s: %v", directory.ErrTimeout, url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (directory.AppPermission, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return directory.AppPermission{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return directory.AppPermission{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return directory.AppPermission{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBytes))
	if err != nil {
		return directory.AppPermission{}, err
	}
	return parseCatalog(body)
}

// parseCatalog validates the connect-config payload strictly: the document
// must be a JSON object whose asset, container and root members are all
// arrays of strings. Absent members and wrongly typed members are rejected,
// not defaulted.
func parseCatalog(body []byte) (directory.AppPermission, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return directory.AppPermission{}, fmt.Errorf("%w: catalog is not a JSON object", directory.ErrUnprocessable)
	}
	var perms directory.AppPermission
	for _, member := range []struct {
		key  string
		dest *[]string
	}{
		{"asset", &perms.Asset},
		{"container", &perms.Container},
		{"root", &perms.Root},
	} {
		entry, ok := raw[member.key]
		if !ok {
			return directory.AppPermission{}, fmt.Errorf("%w: catalog member %q is missing", directory.ErrUnprocessable, member.key)
		}
		var names []string
		if err := json.Unmarshal(entry, &names); err != nil {
			return directory.AppPermission{}, fmt.Errorf("%w: catalog member %q is not a string array", directory.ErrUnprocessable, member.key)
		}
		*member.dest = names
	}
	return perms, nil
}

// Nudge tells the app its configuration in the directory changed. Failures
// are logged and swallowed; the edit that triggered the nudge proceeds.
func (f *Fetcher) Nudge(ctx context.Context, url string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+nudgePath, nil)
	if err != nil {
		return
	}
	resp, err := f.client.Do(req)
	if err != nil {
		obs.LogError("connect nudge failed", map[string]any{"url": url, "error": err.Error()})
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
}
