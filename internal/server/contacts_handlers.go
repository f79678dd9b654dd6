package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	res, _, err := h.svc.List(r.Context(), scope(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(res.Contacts))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), scope(r), chi.URLParam(r, contactIDParam))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) add(w http.ResponseWriter, r *http.Request) {
	var body contactBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Add(r.Context(), scope(r), body.patch())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Update(r.Context(), scope(r), chi.URLParam(r, contactIDParam), body.patch())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), scope(r), chi.URLParam(r, contactIDParam)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Sync(r.Context(), scope(r), body.records())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) importPeople(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Import(r.Context(), scope(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) initSheet(w http.ResponseWriter, r *http.Request) {
	var body initBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Init(r.Context(), scope(r), body.options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
