package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sigauth.org/internal/directory"
	"sigauth.org/internal/session"
)

type testEnv struct {
	handler  http.Handler
	dir      *directory.Service
	sessions *session.Service
	rootID   int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	boot := directory.DefaultBootstrap()
	store := directory.NewMemory(boot)
	dir, err := directory.NewService(store, boot)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := session.NewTokenSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := session.NewService(store, signer)
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		handler:  New(dir, sessions, ReadyProbe{}, "test").Handler(),
		dir:      dir,
		sessions: sessions,
	}
	env.rootID = env.createAccount(t, "root", "root@example.com", "root-password")
	if _, err := dir.SetPermissions(context.Background(), env.rootID, []directory.Grant{
		{AppID: boot.AppID, Identifier: directory.RootPermissionName},
	}); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) createAccount(t *testing.T, name, email, password string) int64 {
	t.Helper()
	hash, err := session.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	acc, err := e.dir.CreateAccount(context.Background(), name, email, hash)
	if err != nil {
		t.Fatal(err)
	}
	return acc.ID
}

// do performs one request against the full middleware chain.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, name, password string) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"name": name, "password": password,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["service"] != "sigauth-api" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"name": "root", "password": "root-password",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("passwordHash")) {
		t.Fatal("response leaks the password hash")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"name": "root", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBootstrapRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/bootstrap", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdminRoutesRequireRootGrant(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "carol", "carol@example.com", "carol-password")
	cookie := env.login(t, "carol", "carol-password")

	rec := env.do(t, http.MethodPost, "/v1/containers", map[string]any{"name": "Sales"}, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("create container as non-root: %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", env.rootID), nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("read account as non-root: %d", rec.Code)
	}
}

func TestBootstrapScopedAccountSeesOnlyItself(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "carol", "carol@example.com", "carol-password")
	cookie := env.login(t, "carol", "carol-password")

	rec := env.do(t, http.MethodGet, "/v1/bootstrap", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var snap directory.Snapshot
	decodeBody(t, rec, &snap)
	if len(snap.Accounts) != 1 || snap.Accounts[0].Name != "carol" {
		t.Fatalf("accounts = %v", snap.Accounts)
	}
	if len(snap.Apps) != 0 || len(snap.Containers) != 0 {
		t.Fatalf("scoped snapshot leaks entities: %+v", snap)
	}
}

func TestBootstrapRootSeesEverything(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodGet, "/v1/bootstrap", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap directory.Snapshot
	decodeBody(t, rec, &snap)
	if len(snap.Containers) != 1 || snap.Containers[0].Name != "Container Management" {
		t.Fatalf("containers = %v", snap.Containers)
	}
	if len(snap.Apps) != 1 || snap.Apps[0].Name != "SigAuth" {
		t.Fatalf("apps = %v", snap.Apps)
	}
}

func TestContainerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/containers", map[string]any{"name": "Sales"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Location"); got != "/v1/containers/2" {
		t.Fatalf("Location = %q", got)
	}
	var created struct {
		Container directory.Container `json:"container"`
		Asset     directory.Asset     `json:"asset"`
	}
	decodeBody(t, rec, &created)
	if created.Asset.Name != "2 - Sales" {
		t.Fatalf("bookkeeping asset = %+v", created.Asset)
	}

	rec = env.do(t, http.MethodPut, "/v1/containers/2", map[string]any{"name": "Marketing"}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	var updated directory.Container
	decodeBody(t, rec, &updated)
	if updated.Name != "Marketing" {
		t.Fatalf("updated = %+v", updated)
	}

	rec = env.do(t, http.MethodPost, "/v1/containers/delete", idsRequest{IDs: []int64{2}}, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body)
	}
	rec = env.do(t, http.MethodGet, "/v1/containers/2", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("read after delete = %d", rec.Code)
	}
}

func TestDeleteProtectedContainerFails(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/containers/delete", idsRequest{IDs: []int64{1}}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestDeleteAccountsRefusesCaller(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/accounts/delete", idsRequest{IDs: []int64{env.rootID}}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestCreateAccountRequiresPassword(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/accounts", map[string]string{
		"name": "dave", "email": "dave@example.com",
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestUnknownJSONFieldsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/containers", map[string]any{
		"name": "Sales", "bogus": true,
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestAssetTypeFieldsWithoutIDsGetFreshOnes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/asset-types", map[string]any{
		"name": "Document",
		"fields": []map[string]any{
			{"type": 1, "name": "Title", "required": true},
			{"type": 3, "name": "Archived", "required": false},
		},
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var created directory.AssetType
	decodeBody(t, rec, &created)
	if len(created.Fields) != 2 || created.Fields[0].ID != 0 || created.Fields[1].ID != 1 {
		t.Fatalf("fields = %+v", created.Fields)
	}
}

func TestAppCreationReturnsTokenOnce(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/apps", map[string]any{
		"name": "CRM",
		"permissions": map[string]any{
			"asset": []string{}, "container": []string{}, "root": []string{"Administer"},
		},
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		App   directory.App `json:"app"`
		Token string        `json:"token"`
	}
	decodeBody(t, rec, &created)
	if len(created.Token) != 64 {
		t.Fatalf("token = %q", created.Token)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/apps/%d", created.App.ID), nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(created.Token)) {
		t.Fatal("app read leaks the bearer token")
	}
}

func TestAPITokenSelfServiceAndBearerAuth(t *testing.T) {
	env := newTestEnv(t)
	carolID := env.createAccount(t, "carol", "carol@example.com", "carol-password")
	cookie := env.login(t, "carol", "carol-password")

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/v1/accounts/%d/api-token", carolID), nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue status = %d, body %s", rec.Code, rec.Body)
	}
	var issued struct {
		APIToken string `json:"apiToken"`
	}
	decodeBody(t, rec, &issued)
	if issued.APIToken == "" {
		t.Fatal("empty api token")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/bootstrap", nil)
	req.Header.Set("Authorization", "Bearer "+issued.APIToken)
	bearer := httptest.NewRecorder()
	env.handler.ServeHTTP(bearer, req)
	if bearer.Code != http.StatusOK {
		t.Fatalf("bearer status = %d, body %s", bearer.Code, bearer.Body)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/accounts/%d/api-token", env.rootID), nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("issuing for another account: %d", rec.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodGet, "/v1/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/bootstrap", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("session survived logout: %d", rec.Code)
	}
}

func TestMethodNotAllowedSetsAllowHeader(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodDelete, "/v1/containers/1", nil, cookie)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET, PUT" {
		t.Fatalf("Allow = %q", got)
	}
}

func TestResourceIDParsing(t *testing.T) {
	cases := []struct {
		path string
		id   int64
		sub  string
		ok   bool
	}{
		{"/v1/accounts/42", 42, "", true},
		{"/v1/accounts/42/permissions", 42, "permissions", true},
		{"/v1/accounts/", 0, "", false},
		{"/v1/accounts/abc", 0, "", false},
		{"/v1/accounts/0", 0, "", false},
		{"/v1/accounts/1/a/b", 0, "", false},
	}
	for _, tc := range cases {
		id, sub, ok := resourceID(tc.path, "/v1/accounts/")
		if id != tc.id || sub != tc.sub || ok != tc.ok {
			t.Errorf("resourceID(%q) = (%d, %q, %v)", tc.path, id, sub, ok)
		}
	}
}
