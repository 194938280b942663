package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-datalayer/internal/localstore"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
)

func (h *Handler) spec(w http.ResponseWriter, r *http.Request) (resource.Spec, bool) {
	spec, err := resource.Lookup(resource.Kind(chi.URLParam(r, "resource")))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return resource.Spec{}, false
	}
	return spec, true
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.spec(w, r)
	if !ok {
		return
	}
	list, err := h.local.List(r.Context(), spec.Kind)
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{spec.ListKey: list})
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.spec(w, r)
	if !ok {
		return
	}
	res, err := h.local.Get(r.Context(), spec.Kind, chi.URLParam(r, "id"))
	if errors.Is(err, localstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{spec.ItemKey: res})
}

func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.spec(w, r)
	if !ok {
		return
	}
	var body resource.Resource
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if err := validate(spec.Kind, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.ID() == "" {
		body["id"] = uuid.NewString()
	}
	body.Touch(h.now())

	if err := h.local.Append(r.Context(), spec.Kind, body); err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{spec.ItemKey: body})
}

func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.spec(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	current, err := h.local.Get(r.Context(), spec.Kind, id)
	if errors.Is(err, localstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	merged := current.Merge(patch)
	if err := validate(spec.Kind, merged); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	merged.Touch(h.now())

	updated, err := h.local.Update(r.Context(), spec.Kind, id, merged)
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{spec.ItemKey: updated})
}

func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.spec(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.local.Get(r.Context(), spec.Kind, id); errors.Is(err, localstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := h.local.Delete(r.Context(), spec.Kind, id); err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func validate(kind resource.Kind, r resource.Resource) error {
	if kind != resource.Transactions {
		return nil
	}
	tx, err := resource.TransactionFrom(r)
	if err != nil {
		return err
	}
	return tx.Validate()
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	logger.Log.Error("Local API request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
