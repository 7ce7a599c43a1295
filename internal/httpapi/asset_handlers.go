package httpapi

import (
	"fmt"
	"net/http"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
)

type assetRequest struct {
	Name   string                `json:"name"`
	TypeID int64                 `json:"typeId"`
	Fields directory.FieldValues `json:"fields"`
}

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req assetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := a.dir.UpsertAsset(r.Context(), directory.AssetUpsert{
		Name:   req.Name,
		TypeID: req.TypeID,
		Fields: req.Fields,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset.create", map[string]any{"id": asset.ID, "name": asset.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/assets/%d", asset.ID))
	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/assets/delete" {
		a.deleteAssets(w, r)
		return
	}
	id, sub, ok := resourceID(r.URL.Path, "/v1/assets/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getAsset(w, r, id)
	case http.MethodPut:
		a.updateAsset(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getAsset(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	asset, err := a.dir.Asset(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) updateAsset(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req assetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := a.dir.UpsertAsset(r.Context(), directory.AssetUpsert{
		ID:     &id,
		Name:   req.Name,
		Fields: req.Fields,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset.update", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) deleteAssets(w http.ResponseWriter, r *http.Request) {
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
	if err := a.dir.DeleteAssets(r.Context(), req.IDs); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset.delete", map[string]any{"ids": req.IDs})
	w.WriteHeader(http.StatusNoContent)
}
