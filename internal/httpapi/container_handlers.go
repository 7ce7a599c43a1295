package httpapi

import (
	"fmt"
	"net/http"

	"sigauth.org/internal/audit"
)

type containerRequest struct {
	Name   string  `json:"name"`
	Assets []int64 `json:"assets"`
	Apps   []int64 `json:"apps"`
}

func (a *API) handleContainersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req containerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	container, bookkeeping, err := a.dir.CreateContainer(r.Context(), req.Name, req.Assets, req.Apps)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "container.create", map[string]any{"id": container.ID, "name": container.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/containers/%d", container.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"container": container,
		"asset":     bookkeeping,
	})
}

func (a *API) handleContainerResource(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/containers/delete" {
		a.deleteContainers(w, r)
		return
	}
	id, sub, ok := resourceID(r.URL.Path, "/v1/containers/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getContainer(w, r, id)
	case http.MethodPut:
		a.updateContainer(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getContainer(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	container, err := a.dir.Container(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, container)
}

func (a *API) updateContainer(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req containerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	container, err := a.dir.EditContainer(r.Context(), id, req.Name, req.Assets, req.Apps)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "container.update", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, container)
}

func (a *API) deleteContainers(w http.ResponseWriter, r *http.Request) {
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
	if err := a.dir.DeleteContainers(r.Context(), req.IDs); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "container.delete", map[string]any{"ids": req.IDs})
	w.WriteHeader(http.StatusNoContent)
}
