package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/http/middleware"
	"github.com/porteria/visitor-access/internal/http/response"
	"github.com/porteria/visitor-access/internal/service"
)

type BlacklistHandler struct {
	gate *service.BlacklistGate
}

func NewBlacklistHandler(gate *service.BlacklistGate) *BlacklistHandler {
	return &BlacklistHandler{gate: gate}
}

func (h *BlacklistHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Delete("/{id}", h.remove)
	return r
}

func (h *BlacklistHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		response.BadRequest(w, "invalid limit or offset")
		return
	}
	entries, err := h.gate.List(r.Context(), middleware.ActorFrom(r).CompanyID, limit, offset)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	if entries == nil {
		entries = []domain.BlacklistEntry{}
	}
	response.WriteJSON(w, http.StatusOK, entries)
}

func (h *BlacklistHandler) add(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Identifier string `json:"identifier"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	if strings.TrimSpace(in.Identifier) == "" {
		response.BadRequest(w, "identifier is required")
		return
	}

	entry, err := h.gate.Add(r.Context(), middleware.ActorFrom(r), in.Identifier, in.Reason)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, entry)
}

func (h *BlacklistHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	if err := h.gate.Remove(r.Context(), middleware.ActorFrom(r), id); err != nil {
		response.FromDomain(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
