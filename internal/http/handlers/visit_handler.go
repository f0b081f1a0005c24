package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/http/middleware"
	"github.com/porteria/visitor-access/internal/http/response"
	"github.com/porteria/visitor-access/internal/service"
)

type VisitHandler struct {
	svc             service.VisitService
	confirmationURL string
}

func NewVisitHandler(svc service.VisitService, confirmationURL string) *VisitHandler {
	return &VisitHandler{svc: svc, confirmationURL: confirmationURL}
}

func (h *VisitHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/checkin/{id}", h.checkIn)
	r.Post("/checkout/{id}", h.checkOut)
	return r
}

// Public registers kiosk self-registration and the one-click decision
// links from approval emails.
func (h *VisitHandler) Public(r chi.Router) {
	r.Post("/visits/self-register", h.selfRegister)
	r.Get("/visits/approve/{token}", h.decideByToken(domain.DecisionApproved))
	r.Get("/visits/reject/{token}", h.decideByToken(domain.DecisionRejected))
}

func (h *VisitHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateVisitReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}

	visit, err := h.svc.Create(r.Context(), middleware.ActorFrom(r), &in)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, visit)
}

func (h *VisitHandler) selfRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CompanyID int64 `json:"company_id"`
		domain.CreateVisitReq
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	if in.CompanyID <= 0 {
		response.BadRequest(w, "company_id is required")
		return
	}

	visit, err := h.svc.SelfRegister(r.Context(), in.CompanyID, &in.CreateVisitReq)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, visit)
}

func (h *VisitHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		response.BadRequest(w, "invalid limit or offset")
		return
	}

	var status *domain.VisitStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseVisitStatus(raw)
		if !ok {
			response.BadRequest(w, "invalid status (allowed: pending, approved, rejected, checked-in, completed)")
			return
		}
		status = &st
	}

	visits, err := h.svc.List(r.Context(), middleware.ActorFrom(r), limit, offset, status)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	if visits == nil {
		visits = []domain.Visit{}
	}
	response.WriteJSON(w, http.StatusOK, visits)
}

func (h *VisitHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	visit, err := h.svc.Get(r.Context(), middleware.ActorFrom(r), id)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, visit)
}

func (h *VisitHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var patch domain.VisitPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badJSON(w)
		return
	}

	visit, err := h.svc.Update(r.Context(), middleware.ActorFrom(r), id, patch)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, visit)
}

func (h *VisitHandler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.DecisionApproved)
}

func (h *VisitHandler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.DecisionRejected)
}

func (h *VisitHandler) decide(w http.ResponseWriter, r *http.Request, decision domain.ApprovalDecision) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}

	var (
		visit *domain.Visit
		err   error
	)
	if decision == domain.DecisionApproved {
		visit, err = h.svc.Approve(r.Context(), middleware.ActorFrom(r), id, time.Now())
	} else {
		visit, err = h.svc.Reject(r.Context(), middleware.ActorFrom(r), id, time.Now())
	}
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, visit)
}

// decideByToken redeems an email link and always lands the clicker on
// the confirmation page; the outcome travels as a query parameter.
func (h *VisitHandler) decideByToken(decision domain.ApprovalDecision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		if token == "" {
			response.BadRequest(w, "token is required")
			return
		}

		_, err := h.svc.DecideByToken(r.Context(), token, decision, time.Now())
		result := string(decision)
		if err != nil {
			switch domain.CodeOf(err) {
			case domain.CodeExpiredToken:
				result = "expired"
			case domain.CodeInvalidState:
				result = "already-decided"
			case domain.CodeNotFound:
				result = "not-found"
			default:
				response.FromDomain(w, err)
				return
			}
		}

		http.Redirect(w, r, h.confirmationURL+"?result="+result, http.StatusFound)
	}
}

func (h *VisitHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	visit, err := h.svc.CheckIn(r.Context(), middleware.ActorFrom(r), id, time.Now())
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, visit)
}

func (h *VisitHandler) checkOut(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var in struct {
		Photos []string `json:"photos"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badJSON(w)
			return
		}
	}

	visit, err := h.svc.CheckOut(r.Context(), middleware.ActorFrom(r), id, in.Photos, time.Now())
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, visit)
}
