package httpapi

import (
	"fmt"
	"net/http"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
)

type appRequest struct {
	Name            string                  `json:"name"`
	URL             string                  `json:"url"`
	OIDCAuthCodeURL string                  `json:"oidcAuthCodeUrl"`
	Permissions     directory.AppPermission `json:"permissions"`
	WebFetchEnabled bool                    `json:"webFetchEnabled"`
	Nudge           bool                    `json:"nudge"`
}

func (a *API) handleAppsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req appRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	app, err := a.dir.CreateApp(r.Context(), directory.AppCreate{
		Name:            req.Name,
		URL:             req.URL,
		OIDCAuthCodeURL: req.OIDCAuthCodeURL,
		Permissions:     req.Permissions,
		WebFetchEnabled: req.WebFetchEnabled,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "app.create", map[string]any{"id": app.ID, "name": app.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/apps/%d", app.ID))
	// The bearer token is returned exactly once, on creation.
	writeJSON(w, http.StatusCreated, map[string]any{
		"app":   app,
		"token": app.Token,
	})
}

func (a *API) handleAppResource(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/apps/delete" {
		a.deleteApps(w, r)
		return
	}
	id, sub, ok := resourceID(r.URL.Path, "/v1/apps/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getApp(w, r, id)
	case http.MethodPut:
		a.updateApp(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getApp(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	app, err := a.dir.App(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) updateApp(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req appRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	app, err := a.dir.EditApp(r.Context(), id, directory.AppEdit{
		Name:            req.Name,
		URL:             req.URL,
		OIDCAuthCodeURL: req.OIDCAuthCodeURL,
		Permissions:     req.Permissions,
		WebFetchEnabled: req.WebFetchEnabled,
		Nudge:           req.Nudge,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "app.update", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, app)
}

func (a *API) deleteApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.dir.DeleteApps(r.Context(), req.IDs); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "app.delete", map[string]any{"ids": req.IDs})
	w.WriteHeader(http.StatusNoContent)
}
