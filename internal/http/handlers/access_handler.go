package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/http/middleware"
	"github.com/porteria/visitor-access/internal/http/response"
	"github.com/porteria/visitor-access/internal/platform/qr"
	"github.com/porteria/visitor-access/internal/service"
)

type AccessHandler struct {
	svc service.AccessService
}

func NewAccessHandler(svc service.AccessService) *AccessHandler {
	return &AccessHandler{svc: svc}
}

// Routes is the authenticated staff surface.
func (h *AccessHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.cancel)
	r.Post("/{id}/finalize", h.finalize)
	r.Post("/{id}/guests", h.addGuests)
	return r
}

// Public registers the unauthenticated surface: active event listing,
// pre-registration, and guard check-in. Registered directly on the
// parent router so the staff mount on the same prefix can coexist.
func (h *AccessHandler) Public(r chi.Router) {
	r.Get("/access/public/active", h.publicActive)
	r.Get("/access/{id}/public-info", h.publicInfo)
	r.Post("/access/{id}/pre-register", h.preRegister)
	r.Post("/access/check-in/{accessCode}", h.checkInByCode)
	r.Post("/access/scan", h.scan)
}

// accessRes wraps an access with any per-guest warnings from create or
// update (duplicates skipped, blacklist advisories).
type accessRes struct {
	Access   *domain.Access `json:"access"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (h *AccessHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateAccessReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}

	access, warnings, err := h.svc.Create(r.Context(), middleware.ActorFrom(r), &in)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, accessRes{Access: access, Warnings: warnings})
}

func (h *AccessHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		response.BadRequest(w, "invalid limit or offset")
		return
	}

	var status *domain.AccessStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseAccessStatus(raw)
		if !ok {
			response.BadRequest(w, "invalid status (allowed: active, finalized, cancelled)")
			return
		}
		status = &st
	}

	accesses, err := h.svc.List(r.Context(), middleware.ActorFrom(r), limit, offset, status)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	if accesses == nil {
		accesses = []domain.Access{}
	}
	response.WriteJSON(w, http.StatusOK, accesses)
}

func (h *AccessHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	access, err := h.svc.Get(r.Context(), middleware.ActorFrom(r), id)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, access)
}

func (h *AccessHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var patch domain.AccessPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badJSON(w)
		return
	}

	access, warnings, err := h.svc.Update(r.Context(), middleware.ActorFrom(r), id, patch)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, accessRes{Access: access, Warnings: warnings})
}

func (h *AccessHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	if err := h.svc.Cancel(r.Context(), middleware.ActorFrom(r), id); err != nil {
		response.FromDomain(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	err := h.svc.Finalize(r.Context(), middleware.ActorFrom(r), id, true, time.Now())
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) addGuests(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var in struct {
		Guests []domain.GuestReq `json:"guests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	if len(in.Guests) == 0 {
		response.BadRequest(w, "guests is required")
		return
	}

	added, warnings, err := h.svc.AddGuests(r.Context(), middleware.ActorFrom(r), id, in.Guests, domain.OriginInvited)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, struct {
		Added    []domain.Guest `json:"added"`
		Warnings []string       `json:"warnings,omitempty"`
	}{Added: added, Warnings: warnings})
}

func (h *AccessHandler) publicActive(w http.ResponseWriter, r *http.Request) {
	accesses, err := h.svc.ListPublicActive(r.Context(), time.Now())
	if err != nil {
		response.FromDomain(w, err)
		return
	}

	// Trim to what an anonymous visitor needs; the guest list stays
	// private.
	type publicAccess struct {
		ID        int64     `json:"id"`
		EventName string    `json:"event_name"`
		Location  string    `json:"location"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
	}
	out := make([]publicAccess, 0, len(accesses))
	for _, a := range accesses {
		out = append(out, publicAccess{
			ID: a.ID, EventName: a.EventName, Location: a.Location,
			StartDate: a.StartDate, EndDate: a.EndDate,
		})
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *AccessHandler) publicInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	access, err := h.svc.PublicInfo(r.Context(), id)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, struct {
		ID             int64     `json:"id"`
		EventName      string    `json:"event_name"`
		Location       string    `json:"location"`
		EventImage     string    `json:"event_image,omitempty"`
		AdditionalInfo string    `json:"additional_info,omitempty"`
		StartDate      time.Time `json:"start_date"`
		EndDate        time.Time `json:"end_date"`
	}{
		ID: access.ID, EventName: access.EventName, Location: access.Location,
		EventImage: access.EventImage, AdditionalInfo: access.AdditionalInfo,
		StartDate: access.StartDate, EndDate: access.EndDate,
	})
}

func (h *AccessHandler) preRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var in domain.GuestReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}

	guest, err := h.svc.PreRegister(r.Context(), id, &in)
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, guest)
}

func (h *AccessHandler) checkInByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "accessCode")
	if code == "" {
		response.BadRequest(w, "access code is required")
		return
	}
	var in struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	if in.Email == "" && in.Phone == "" {
		response.BadRequest(w, "email or phone is required")
		return
	}

	guest, err := h.svc.CheckInByCode(r.Context(), code, in.Email, in.Phone, time.Now())
	if err != nil {
		response.FromDomain(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, guest)
}

// scanRes is the outcome of redeeming a scanned QR payload: either the
// guest was checked in directly, or the client gets prefill data for the
// visit registration form.
type scanRes struct {
	Action  string        `json:"action"`
	Guest   *domain.Guest `json:"guest,omitempty"`
	Prefill *visitPrefill `json:"prefill,omitempty"`
}

type visitPrefill struct {
	VisitorName  string    `json:"visitor_name"`
	VisitorEmail string    `json:"visitor_email"`
	AccessCode   string    `json:"access_code"`
	VisitType    string    `json:"visit_type"`
	EventName    string    `json:"event_name,omitempty"`
	EventDate    time.Time `json:"event_date,omitempty"`
	Location     string    `json:"location,omitempty"`
	HostName     string    `json:"host_name,omitempty"`
}

func (h *AccessHandler) scan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	if in.Payload == "" {
		response.BadRequest(w, "payload is required")
		return
	}
	p, err := qr.Decode(in.Payload)
	if err != nil {
		response.BadRequest(w, "invalid QR payload")
		return
	}

	if p.Type == qr.TypeVisitCheckIn {
		if p.GuestEmail == "" {
			response.BadRequest(w, "check-in payload carries no email")
			return
		}
		guest, err := h.svc.CheckInByCode(r.Context(), p.AccessCode, p.GuestEmail, "", time.Now())
		if err != nil {
			response.FromDomain(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, scanRes{Action: "checked-in", Guest: guest})
		return
	}

	response.WriteJSON(w, http.StatusOK, scanRes{Action: "prefill", Prefill: &visitPrefill{
		VisitorName:  p.GuestName,
		VisitorEmail: p.GuestEmail,
		AccessCode:   p.AccessCode,
		VisitType:    domain.VisitTypeAccessCode,
		EventName:    p.EventName,
		EventDate:    p.EventDate,
		Location:     p.Location,
		HostName:     p.HostName,
	}})
}
