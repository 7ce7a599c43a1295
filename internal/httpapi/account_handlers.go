package httpapi

import (
	"fmt"
	"net/http"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
	"sigauth.org/internal/session"
)

type createAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateAccountRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Password     *string `json:"password"`
	SecondFactor *string `json:"secondFactor"`
}

type setPermissionsRequest struct {
	Permissions []directory.Grant `json:"permissions"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}
	hash, err := session.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.dir.CreateAccount(r.Context(), req.Name, req.Email, hash)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.create", map[string]any{"id": account.ID, "name": account.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/accounts/%d", account.ID))
	writeJSON(w, http.StatusCreated, account)
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/accounts/delete" {
		a.deleteAccounts(w, r)
		return
	}
	id, sub, ok := resourceID(r.URL.Path, "/v1/accounts/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getAccount(w, r, id)
		case http.MethodPut:
			a.updateAccount(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case "permissions":
		switch r.Method {
		case http.MethodGet:
			a.getPermissions(w, r, id)
		case http.MethodPut:
			a.setPermissions(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case "api-token":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.issueAPIToken(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	account, err := a.dir.Account(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := directory.AccountUpdate{
		Name:         req.Name,
		Email:        req.Email,
		SecondFactor: req.SecondFactor,
	}
	if req.Password != nil {
		hash, err := session.HashPassword(*req.Password)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.PasswordHash = &hash
	}
	account, err := a.dir.UpdateAccount(r.Context(), id, upd)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.update", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) deleteAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.requireRoot(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for _, id := range req.IDs {
		if id == p.Account.ID {
			writeError(w, r, http.StatusBadRequest, "cannot delete the calling account")
			return
		}
	}
	if err := a.dir.DeleteAccounts(r.Context(), req.IDs); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.delete", map[string]any{"ids": req.IDs})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getPermissions(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	grants, err := a.dir.Permissions(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": grants})
}

func (a *API) setPermissions(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req setPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grants, err := a.dir.SetPermissions(r.Context(), id, req.Permissions)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.permissions.replace", map[string]any{
		"id":    id,
		"count": len(grants),
	})
	writeJSON(w, http.StatusOK, map[string]any{"permissions": grants})
}

// issueAPIToken lets root mint a token for anyone and every account mint its
// own.
func (a *API) issueAPIToken(w http.ResponseWriter, r *http.Request, id int64) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if p.Account.ID != id && !a.dir.Bootstrap().IsRoot(p.Grants) {
		writeError(w, r, http.StatusUnauthorized, "root permission required")
		return
	}
	token, err := a.sessions.IssueAPIToken(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apiToken": token})
}
