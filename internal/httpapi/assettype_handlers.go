package httpapi

import (
	"fmt"
	"net/http"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
)

// assetTypeFieldDTO carries a field definition over the wire. A null or
// absent id marks the field as new on edit.
type assetTypeFieldDTO struct {
	ID       *int64              `json:"id"`
	Type     directory.FieldType `json:"type"`
	Name     string              `json:"name"`
	Required bool                `json:"required"`
	Options  []string            `json:"options"`
}

type assetTypeRequest struct {
	Name   string              `json:"name"`
	Fields []assetTypeFieldDTO `json:"fields"`
}

func (req assetTypeRequest) fields() []directory.AssetTypeField {
	out := make([]directory.AssetTypeField, len(req.Fields))
	for i, f := range req.Fields {
		id := int64(-1)
		if f.ID != nil {
			id = *f.ID
		}
		out[i] = directory.AssetTypeField{
			ID:       id,
			Type:     f.Type,
			Name:     f.Name,
			Required: f.Required,
			Options:  f.Options,
		}
	}
	return out
}

func (a *API) handleAssetTypesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req assetTypeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.dir.CreateAssetType(r.Context(), req.Name, req.fields())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset_type.create", map[string]any{"id": t.ID, "name": t.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/asset-types/%d", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleAssetTypeResource(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/asset-types/delete" {
		a.deleteAssetTypes(w, r)
		return
	}
	id, sub, ok := resourceID(r.URL.Path, "/v1/asset-types/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getAssetType(w, r, id)
	case http.MethodPut:
		a.updateAssetType(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getAssetType(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	t, err := a.dir.AssetType(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) updateAssetType(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireRoot(w, r); !ok {
		return
	}
	var req assetTypeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.dir.EditAssetType(r.Context(), id, req.Name, req.fields())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset_type.update", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteAssetTypes(w http.ResponseWriter, r *http.Request) {
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
	if err := a.dir.DeleteAssetTypes(r.Context(), req.IDs); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "asset_type.delete", map[string]any{"ids": req.IDs})
	w.WriteHeader(http.StatusNoContent)
}
